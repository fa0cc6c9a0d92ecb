package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	aws_pkg "github.com/AymanAbdiMohamed/Donation-Platform-backend/pkg/aws"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAccountReference = "Donation"
	accountReferenceLen     = 12
)

// InitiateDonationInput is a validated donation request. AmountMinor is in cents.
type InitiateDonationInput struct {
	DonorID     uuid.UUID
	CharityID   uuid.UUID
	AmountMinor int64
	Phone       string
	IsAnonymous bool
	Message     *string
}

// InitiateDonationResult is returned once the STK prompt is on its way.
type InitiateDonationResult struct {
	Donation          *models.Donation
	CheckoutRequestID string
	CustomerMessage   string
}

// DonationStatusView is the pollable projection of a ledger entry.
type DonationStatusView struct {
	ID                 uuid.UUID             `json:"id"`
	Status             models.DonationStatus `json:"status"`
	MpesaReceiptNumber *string               `json:"mpesa_receipt_number"`
	Amount             int64                 `json:"amount"`
	AmountKES          float64               `json:"amount_kes"`
	CharityName        string                `json:"charity_name"`
	FailureReason      *string               `json:"failure_reason"`
	CheckoutRequestID  string                `json:"checkout_request_id"`
	CreatedAt          time.Time             `json:"created_at"`
}

// DonationService defines the donor-facing payment operations.
type DonationService interface {
	InitiateDonation(ctx context.Context, in InitiateDonationInput) (*InitiateDonationResult, *ServiceError)
	GetStatusByID(ctx context.Context, donorID, donationID uuid.UUID) (*DonationStatusView, *ServiceError)
	GetStatusByCheckoutID(ctx context.Context, donorID uuid.UUID, checkoutRequestID string) (*DonationStatusView, *ServiceError)
}

type donationServiceImpl struct {
	donations repository.DonationRepository
	charities repository.CharityRepository
	provider  providers.PaymentProvider
	notify    notifier
	logger    *zap.Logger
}

// NewDonationService creates a DonationService. provider may be nil when
// M-Pesa is not configured, in which case initiation answers 503.
func NewDonationService(
	donations repository.DonationRepository,
	charities repository.CharityRepository,
	provider providers.PaymentProvider,
	events EventPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
) DonationService {
	return &donationServiceImpl{
		donations: donations,
		charities: charities,
		provider:  provider,
		notify:    notifier{events: events, metrics: metrics, logger: logger},
		logger:    logger,
	}
}

// InitiateDonation validates the request, sends the STK push and records a
// PENDING donation keyed by the provider's checkout id. No row is written
// unless the provider accepted the request.
func (s *donationServiceImpl) InitiateDonation(ctx context.Context, in InitiateDonationInput) (*InitiateDonationResult, *ServiceError) {
	if in.AmountMinor <= 0 {
		return nil, newServiceError(http.StatusBadRequest, KindInvalidAmount, "Amount must be greater than zero", nil)
	}
	if in.AmountMinor%100 != 0 {
		return nil, newServiceError(http.StatusBadRequest, KindInvalidAmount, "M-Pesa amounts must be whole shillings", nil)
	}

	phone, err := providers.NormalizePhone(in.Phone)
	if err != nil {
		return nil, newServiceError(http.StatusBadRequest, KindInvalidPhone, "Invalid phone number format. Use 254XXXXXXXXX", err)
	}

	if s.provider == nil {
		return nil, newServiceError(http.StatusServiceUnavailable, KindProviderUnavailable, "M-Pesa payments are not configured", providers.ErrProviderNotConfigured)
	}

	charity, err := s.charities.FindByID(ctx, in.CharityID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("Charity lookup failed", zap.String("charity_id", in.CharityID.String()), zap.Error(err))
		return nil, errInternal("Failed to load charity", err)
	}
	if charity == nil || !charity.IsActive {
		return nil, newServiceError(http.StatusNotFound, KindCharityNotFound, "Charity not found or inactive", nil)
	}

	reference := accountReference(charity.Name)
	push, err := s.provider.InitiateSTKPush(ctx, providers.STKPushRequest{
		Amount:      in.AmountMinor / 100,
		Phone:       phone,
		Reference:   reference,
		Description: "Donation to " + reference,
	})
	if err != nil {
		s.notify.count(aws_pkg.MetricSTKPushErrors)
		return nil, initiationError(err)
	}

	donation := &models.Donation{
		ID:                uuid.New(),
		Amount:            in.AmountMinor,
		DonorID:           in.DonorID,
		CharityID:         in.CharityID,
		PhoneNumber:       phone,
		Status:            models.DonationPending,
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		IsAnonymous:       in.IsAnonymous,
		Message:           in.Message,
	}
	if err := s.donations.Create(ctx, donation); err != nil {
		// The subscriber already has a prompt; the callback for it will find no row.
		s.logger.Error("Failed to record donation after STK push",
			zap.String("checkout_request_id", push.CheckoutRequestID),
			zap.Error(err),
		)
		return nil, errInternal("Failed to record donation", err)
	}

	s.logger.Info("Donation initiated",
		zap.String("donation_id", donation.ID.String()),
		zap.String("checkout_request_id", donation.CheckoutRequestID),
		zap.String("charity_id", donation.CharityID.String()),
		zap.Int64("amount", donation.Amount),
		zap.String("phone", providers.MaskPhone(phone)),
	)
	s.notify.publish(ctx, models.EventDonationInitiated, donation)
	s.notify.count(aws_pkg.MetricDonationsInitiated)

	return &InitiateDonationResult{
		Donation:          donation,
		CheckoutRequestID: push.CheckoutRequestID,
		CustomerMessage:   push.CustomerMessage,
	}, nil
}

// GetStatusByID returns the donation's status if it belongs to donorID.
func (s *donationServiceImpl) GetStatusByID(ctx context.Context, donorID, donationID uuid.UUID) (*DonationStatusView, *ServiceError) {
	d, err := s.donations.FindByID(ctx, donationID)
	return s.statusView(ctx, donorID, d, err)
}

// GetStatusByCheckoutID returns the donation's status if it belongs to donorID.
func (s *donationServiceImpl) GetStatusByCheckoutID(ctx context.Context, donorID uuid.UUID, checkoutRequestID string) (*DonationStatusView, *ServiceError) {
	d, err := s.donations.FindByCheckoutRequestID(ctx, checkoutRequestID)
	return s.statusView(ctx, donorID, d, err)
}

func (s *donationServiceImpl) statusView(ctx context.Context, donorID uuid.UUID, d *models.Donation, err error) (*DonationStatusView, *ServiceError) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("Donation not found")
		}
		s.logger.Error("Donation lookup failed", zap.Error(err))
		return nil, errInternal("Failed to load donation", err)
	}
	if d == nil || d.DonorID != donorID {
		return nil, errNotFound("Donation not found")
	}

	view := &DonationStatusView{
		ID:                 d.ID,
		Status:             d.Status,
		MpesaReceiptNumber: d.MpesaReceiptNumber,
		Amount:             d.Amount,
		AmountKES:          d.AmountKES(),
		FailureReason:      d.FailureReason,
		CheckoutRequestID:  d.CheckoutRequestID,
		CreatedAt:          d.CreatedAt,
	}
	if charity, err := s.charities.FindByID(ctx, d.CharityID); err == nil {
		view.CharityName = charity.Name
	} else {
		s.logger.Warn("Charity name unavailable for donation",
			zap.String("donation_id", d.ID.String()),
			zap.Error(err),
		)
	}
	return view, nil
}

func initiationError(err error) *ServiceError {
	var initErr *providers.InitiationError
	switch {
	case errors.Is(err, providers.ErrProviderAuth):
		return newServiceError(http.StatusBadGateway, KindProviderAuth, "Could not authenticate with M-Pesa", err)
	case errors.As(err, &initErr):
		return newServiceError(http.StatusBadGateway, KindPaymentInitiation, "M-Pesa request failed: "+initErr.Detail, err)
	default:
		return newServiceError(http.StatusBadGateway, KindPaymentInitiation, "M-Pesa request failed", err)
	}
}

// accountReference is the charity name cut to the paybill's 12 character limit.
func accountReference(name string) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) == 0 {
		return defaultAccountReference
	}
	if len(r) > accountReferenceLen {
		r = r[:accountReferenceLen]
	}
	return string(r)
}
