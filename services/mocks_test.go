package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ---- in-memory donation repository ----

type memDonationRepo struct {
	mu        sync.Mutex
	rows      map[string]*models.Donation // by checkout id
	createErr error
	applyErr  error
	listErr   error
	creates   int
}

func newMemDonationRepo(rows ...*models.Donation) *memDonationRepo {
	r := &memDonationRepo{rows: map[string]*models.Donation{}}
	for _, d := range rows {
		r.rows[d.CheckoutRequestID] = d
	}
	return r
}

func (r *memDonationRepo) Create(_ context.Context, d *models.Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.rows[d.CheckoutRequestID]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	r.creates++
	d.CreatedAt = time.Now()
	cp := *d
	r.rows[d.CheckoutRequestID] = &cp
	return nil
}

func (r *memDonationRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.rows {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memDonationRepo) FindByCheckoutRequestID(_ context.Context, checkoutID string) (*models.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[checkoutID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDonationRepo) ApplyOutcome(_ context.Context, checkoutID string, transition func(*models.Donation) error) (*models.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return nil, r.applyErr
	}
	d, ok := r.rows[checkoutID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	if err := transition(&cp); err != nil {
		if errors.Is(err, models.ErrDonationFinalized) {
			current := *d
			return &current, err
		}
		return nil, err
	}
	*d = cp
	out := cp
	return &out, nil
}

func (r *memDonationRepo) ListStalePending(_ context.Context, createdBefore time.Time, after repository.PendingCursor, limit int) ([]models.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.Donation
	for _, d := range r.rows {
		if d.Status == models.DonationPending && d.CreatedAt.Before(createdBefore) && afterCursor(*d, after) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func afterCursor(d models.Donation, c repository.PendingCursor) bool {
	if c.IsZero() {
		return true
	}
	if !d.CreatedAt.Equal(c.CreatedAt) {
		return d.CreatedAt.After(c.CreatedAt)
	}
	return d.ID.String() > c.ID.String()
}

func (r *memDonationRepo) get(checkoutID string) models.Donation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[checkoutID]
}

// ---- charity repository ----

type mockCharityRepo struct {
	charity *models.Charity
	err     error
}

func (m *mockCharityRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Charity, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.charity == nil || m.charity.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.charity
	return &cp, nil
}

// ---- callback log repository ----

type mockCallbackLogRepo struct {
	mu   sync.Mutex
	logs []models.CallbackLog
	err  error
}

func (m *mockCallbackLogRepo) Create(_ context.Context, l *models.CallbackLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	return m.err
}

// ---- payment provider ----

type mockProvider struct {
	mu        sync.Mutex
	pushReqs  []providers.STKPushRequest
	pushRes   *providers.STKPushResult
	pushErr   error
	query     map[string]*providers.STKQueryResult
	queryErr  error
	queryCall int
	queried   []string
	queryAt   []time.Time
}

func (m *mockProvider) InitiateSTKPush(_ context.Context, req providers.STKPushRequest) (*providers.STKPushResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushReqs = append(m.pushReqs, req)
	return m.pushRes, m.pushErr
}

func (m *mockProvider) QuerySTKStatus(_ context.Context, checkoutID string) (*providers.STKQueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCall++
	m.queried = append(m.queried, checkoutID)
	m.queryAt = append(m.queryAt, time.Now())
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if res, ok := m.query[checkoutID]; ok {
		return res, nil
	}
	return &providers.STKQueryResult{State: providers.QueryPending}, nil
}

// ---- events ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DonationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e models.DonationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// ---- archiver ----

type recordingArchiver struct {
	mu    sync.Mutex
	kinds []string
	err   error
}

func (a *recordingArchiver) Archive(_ context.Context, kind, _ string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
	return a.err
}

// ---- helpers ----

func pendingDonation(checkoutID string, amount int64, createdAt time.Time) *models.Donation {
	return &models.Donation{
		ID:                uuid.New(),
		Amount:            amount,
		DonorID:           uuid.New(),
		CharityID:         uuid.New(),
		PhoneNumber:       "254712345678",
		Status:            models.DonationPending,
		CheckoutRequestID: checkoutID,
		CreatedAt:         createdAt,
	}
}
