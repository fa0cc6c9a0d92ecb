package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	aws_pkg "github.com/AymanAbdiMohamed/Donation-Platform-backend/pkg/aws"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Callback outcome statuses.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// CallbackErrorKind explains why a callback was not applied.
type CallbackErrorKind string

const (
	MalformedCallback  CallbackErrorKind = "MalformedCallback"
	NoMatchingDonation CallbackErrorKind = "NoMatchingDonation"
	ProcessingFailed   CallbackErrorKind = "ProcessingFailed"
)

// CallbackOutcome is the result of processing one provider notification.
// It is informational; the provider is always acknowledged.
type CallbackOutcome struct {
	Status           string                `json:"status"`
	Error            CallbackErrorKind     `json:"error,omitempty"`
	Detail           string                `json:"detail,omitempty"`
	DonationID       *uuid.UUID            `json:"donation_id,omitempty"`
	FinalStatus      models.DonationStatus `json:"final_status,omitempty"`
	AlreadyProcessed bool                  `json:"already_processed"`
}

// Label is a short description of the outcome used for logs and the audit table.
func (o CallbackOutcome) Label() string {
	switch {
	case o.Status == OutcomeError:
		return string(o.Error)
	case o.AlreadyProcessed:
		return "already_processed"
	default:
		return "applied"
	}
}

// CallbackArchiver stores raw notifications outside the database.
type CallbackArchiver interface {
	Archive(ctx context.Context, kind, checkoutRequestID string, payload []byte) error
}

// CallbackService reconciles provider notifications with the donation ledger.
type CallbackService interface {
	ProcessCallback(ctx context.Context, raw []byte) CallbackOutcome
	RecordTimeout(ctx context.Context, raw []byte)
	// FailPending moves a PENDING donation to FAILED with reason. Terminal
	// donations are left untouched.
	FailPending(ctx context.Context, checkoutRequestID, reason string) CallbackOutcome
}

type callbackServiceImpl struct {
	donations repository.DonationRepository
	logs      repository.CallbackLogRepository
	archiver  CallbackArchiver
	notify    notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewCallbackService creates a CallbackService. logs and archiver are optional.
func NewCallbackService(
	donations repository.DonationRepository,
	logs repository.CallbackLogRepository,
	archiver CallbackArchiver,
	events EventPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
) CallbackService {
	return &callbackServiceImpl{
		donations: donations,
		logs:      logs,
		archiver:  archiver,
		notify:    notifier{events: events, metrics: metrics, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessCallback applies an STK callback to the matching donation. It is
// safe to call any number of times with the same payload and never fails.
func (s *callbackServiceImpl) ProcessCallback(ctx context.Context, raw []byte) CallbackOutcome {
	s.notify.count(aws_pkg.MetricCallbacksReceived)

	result := providers.ParseSTKCallback(raw)
	var outcome CallbackOutcome
	var resultCode *int

	switch r := result.(type) {
	case providers.CallbackMalformed:
		s.logger.Warn("Malformed M-Pesa callback",
			zap.String("checkout_request_id", r.CheckoutRequestID),
			zap.String("reason", r.Reason),
		)
		s.notify.count(aws_pkg.MetricCallbacksMalformed)
		outcome = CallbackOutcome{Status: OutcomeError, Error: MalformedCallback, Detail: r.Reason}

	case providers.CallbackSuccess:
		code := 0
		resultCode = &code
		outcome = s.finalize(ctx, r.CheckoutRequestID, func(d *models.Donation) error {
			if r.AmountMinor != 0 && r.AmountMinor != d.Amount {
				s.logger.Warn("Callback amount differs from donation",
					zap.String("donation_id", d.ID.String()),
					zap.Int64("expected", d.Amount),
					zap.Int64("received", r.AmountMinor),
				)
			}
			return d.MarkSucceeded(r.ReceiptNumber, s.now())
		})

	case providers.CallbackFailure:
		code := r.ResultCode
		resultCode = &code
		outcome = s.finalize(ctx, r.CheckoutRequestID, func(d *models.Donation) error {
			return d.MarkFailed(r.Description, s.now())
		})
	}

	s.audit(ctx, models.CallbackKindResult, result.CheckoutID(), resultCode, outcome.Label(), raw)
	return outcome
}

// RecordTimeout logs and stores a timeout notification. The donation stays
// PENDING until a callback or the reconciliation sweep resolves it.
func (s *callbackServiceImpl) RecordTimeout(ctx context.Context, raw []byte) {
	checkoutID := providers.ParseSTKCallback(raw).CheckoutID()
	s.logger.Warn("M-Pesa timeout notification received", zap.String("checkout_request_id", checkoutID))
	s.audit(ctx, models.CallbackKindTimeout, checkoutID, nil, "recorded", raw)
}

func (s *callbackServiceImpl) FailPending(ctx context.Context, checkoutRequestID, reason string) CallbackOutcome {
	return s.finalize(ctx, checkoutRequestID, func(d *models.Donation) error {
		return d.MarkFailed(reason, s.now())
	})
}

// finalize runs a terminal transition under the row lock.
func (s *callbackServiceImpl) finalize(ctx context.Context, checkoutRequestID string, transition func(*models.Donation) error) CallbackOutcome {
	d, err := s.donations.ApplyOutcome(ctx, checkoutRequestID, transition)
	switch {
	case errors.Is(err, models.ErrDonationFinalized):
		s.logger.Info("Skipping duplicate M-Pesa notification",
			zap.String("donation_id", d.ID.String()),
			zap.String("status", string(d.Status)),
		)
		s.notify.count(aws_pkg.MetricCallbacksDuplicate)
		id := d.ID
		return CallbackOutcome{Status: OutcomeSuccess, DonationID: &id, FinalStatus: d.Status, AlreadyProcessed: true}

	case errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Warn("No donation for checkout request", zap.String("checkout_request_id", checkoutRequestID))
		s.notify.count(aws_pkg.MetricCallbacksUnmatched)
		return CallbackOutcome{Status: OutcomeError, Error: NoMatchingDonation}

	case err != nil:
		s.logger.Error("Failed to apply M-Pesa outcome",
			zap.String("checkout_request_id", checkoutRequestID),
			zap.Error(err),
		)
		return CallbackOutcome{Status: OutcomeError, Error: ProcessingFailed, Detail: err.Error()}
	}

	s.logger.Info("Donation finalized",
		zap.String("donation_id", d.ID.String()),
		zap.String("checkout_request_id", checkoutRequestID),
		zap.String("status", string(d.Status)),
	)
	if d.Status == models.DonationSuccess {
		s.notify.publish(ctx, models.EventDonationSucceeded, d)
		s.notify.count(aws_pkg.MetricDonationsSucceeded)
	} else {
		s.notify.publish(ctx, models.EventDonationFailed, d)
		s.notify.count(aws_pkg.MetricDonationsFailed)
	}

	id := d.ID
	return CallbackOutcome{Status: OutcomeSuccess, DonationID: &id, FinalStatus: d.Status}
}

// audit stores the raw notification. Failures are logged only.
func (s *callbackServiceImpl) audit(ctx context.Context, kind, checkoutID string, resultCode *int, outcome string, raw []byte) {
	if s.logs != nil {
		entry := &models.CallbackLog{
			Kind:              kind,
			CheckoutRequestID: checkoutID,
			ResultCode:        resultCode,
			Outcome:           outcome,
			Payload:           jsonPayload(raw),
		}
		if err := s.logs.Create(ctx, entry); err != nil {
			s.logger.Warn("Failed to store callback log", zap.String("kind", kind), zap.Error(err))
		}
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, kind, checkoutID, raw); err != nil {
			s.logger.Warn("Failed to archive callback", zap.String("kind", kind), zap.Error(err))
		}
	}
}

// jsonPayload keeps the jsonb column valid when the body is not JSON.
func jsonPayload(raw []byte) string {
	if json.Valid(raw) {
		return string(raw)
	}
	b, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return string(b)
}
