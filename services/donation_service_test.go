package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type donationFixture struct {
	repo      *memDonationRepo
	charities *mockCharityRepo
	provider  *mockProvider
	events    *recordingPublisher
	charity   *models.Charity
	svc       services.DonationService
}

func newDonationFixture() *donationFixture {
	charity := &models.Charity{ID: uuid.New(), Name: "Kenya Red Cross", IsActive: true}
	f := &donationFixture{
		repo:      newMemDonationRepo(),
		charities: &mockCharityRepo{charity: charity},
		provider: &mockProvider{pushRes: &providers.STKPushResult{
			CheckoutRequestID: "ws_CO_1",
			MerchantRequestID: "GR_1",
			CustomerMessage:   "Success. Request accepted for processing",
		}},
		events:  &recordingPublisher{},
		charity: charity,
	}
	f.svc = services.NewDonationService(f.repo, f.charities, f.provider, f.events, nil, zap.NewNop())
	return f
}

func (f *donationFixture) input() services.InitiateDonationInput {
	return services.InitiateDonationInput{
		DonorID:     uuid.New(),
		CharityID:   f.charity.ID,
		AmountMinor: 50000,
		Phone:       "0712345678",
	}
}

func TestInitiateDonation_Success(t *testing.T) {
	f := newDonationFixture()
	in := f.input()

	res, err := f.svc.InitiateDonation(context.Background(), in)
	require.Nil(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)
	assert.Equal(t, "Success. Request accepted for processing", res.CustomerMessage)
	assert.Equal(t, models.DonationPending, res.Donation.Status)
	assert.Equal(t, int64(50000), res.Donation.Amount)
	assert.Equal(t, "254712345678", res.Donation.PhoneNumber)
	assert.Equal(t, in.DonorID, res.Donation.DonorID)
	assert.NotEqual(t, uuid.Nil, res.Donation.ID)

	require.Len(t, f.provider.pushReqs, 1)
	push := f.provider.pushReqs[0]
	assert.Equal(t, int64(500), push.Amount)
	assert.Equal(t, "254712345678", push.Phone)
	assert.Equal(t, "Kenya Red Cr", push.Reference)
	assert.Equal(t, "Donation to Kenya Red Cr", push.Description)

	stored := f.repo.get("ws_CO_1")
	assert.Equal(t, models.DonationPending, stored.Status)
	assert.Equal(t, "GR_1", stored.MerchantRequestID)
	assert.Nil(t, stored.MpesaReceiptNumber)

	assert.Equal(t, []string{models.EventDonationInitiated}, f.events.types())
}

func TestInitiateDonation_InvalidAmount(t *testing.T) {
	for _, amount := range []int64{0, -100, 150} {
		t.Run(fmt.Sprint(amount), func(t *testing.T) {
			f := newDonationFixture()
			in := f.input()
			in.AmountMinor = amount

			res, err := f.svc.InitiateDonation(context.Background(), in)
			assert.Nil(t, res)
			require.NotNil(t, err)
			assert.Equal(t, http.StatusBadRequest, err.StatusCode)
			assert.Equal(t, services.KindInvalidAmount, err.Kind)
			assert.Empty(t, f.provider.pushReqs)
			assert.Zero(t, f.repo.creates)
		})
	}
}

func TestInitiateDonation_InvalidPhone(t *testing.T) {
	f := newDonationFixture()
	in := f.input()
	in.Phone = "12345"

	_, err := f.svc.InitiateDonation(context.Background(), in)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, services.KindInvalidPhone, err.Kind)
	assert.ErrorIs(t, err, providers.ErrInvalidPhoneFormat)
	assert.Empty(t, f.provider.pushReqs)
}

func TestInitiateDonation_ProviderNotConfigured(t *testing.T) {
	f := newDonationFixture()
	svc := services.NewDonationService(f.repo, f.charities, nil, nil, nil, zap.NewNop())

	_, err := svc.InitiateDonation(context.Background(), f.input())
	require.NotNil(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
	assert.Equal(t, services.KindProviderUnavailable, err.Kind)
	assert.Zero(t, f.repo.creates)
}

func TestInitiateDonation_CharityNotFound(t *testing.T) {
	f := newDonationFixture()
	in := f.input()
	in.CharityID = uuid.New()

	_, err := f.svc.InitiateDonation(context.Background(), in)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, services.KindCharityNotFound, err.Kind)
	assert.Empty(t, f.provider.pushReqs)
}

func TestInitiateDonation_CharityInactive(t *testing.T) {
	f := newDonationFixture()
	f.charity.IsActive = false

	_, err := f.svc.InitiateDonation(context.Background(), f.input())
	require.NotNil(t, err)
	assert.Equal(t, services.KindCharityNotFound, err.Kind)
}

func TestInitiateDonation_CharityLookupError(t *testing.T) {
	f := newDonationFixture()
	f.charities.err = errors.New("connection refused")

	_, err := f.svc.InitiateDonation(context.Background(), f.input())
	require.NotNil(t, err)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
}

func TestInitiateDonation_ProviderAuthError(t *testing.T) {
	f := newDonationFixture()
	f.provider.pushErr = fmt.Errorf("%w: status 400", providers.ErrProviderAuth)

	_, err := f.svc.InitiateDonation(context.Background(), f.input())
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
	assert.Equal(t, services.KindProviderAuth, err.Kind)
	assert.Zero(t, f.repo.creates)
	assert.Empty(t, f.events.types())
}

func TestInitiateDonation_ProviderRejected(t *testing.T) {
	f := newDonationFixture()
	f.provider.pushErr = &providers.InitiationError{Detail: "Invalid Access Token"}

	_, err := f.svc.InitiateDonation(context.Background(), f.input())
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
	assert.Equal(t, services.KindPaymentInitiation, err.Kind)
	assert.Contains(t, err.Message, "Invalid Access Token")
	assert.Zero(t, f.repo.creates)
}

func TestInitiateDonation_StoreFailure(t *testing.T) {
	f := newDonationFixture()
	f.repo.createErr = errors.New("disk full")

	res, err := f.svc.InitiateDonation(context.Background(), f.input())
	assert.Nil(t, res)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, services.KindInternal, err.Kind)
	assert.Empty(t, f.events.types())
}

func TestInitiateDonation_PublishFailureIsNotFatal(t *testing.T) {
	f := newDonationFixture()
	f.events.err = errors.New("sns down")

	res, err := f.svc.InitiateDonation(context.Background(), f.input())
	require.Nil(t, err)
	assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)
}

func TestInitiateDonation_BlankCharityNameUsesDefaultReference(t *testing.T) {
	f := newDonationFixture()
	f.charity.Name = "   "

	_, err := f.svc.InitiateDonation(context.Background(), f.input())
	require.Nil(t, err)
	assert.Equal(t, "Donation", f.provider.pushReqs[0].Reference)
}

func TestGetStatusByID(t *testing.T) {
	f := newDonationFixture()
	d := pendingDonation("ws_CO_9", 50000, time.Now())
	d.CharityID = f.charity.ID
	require.NoError(t, f.repo.Create(context.Background(), d))

	view, err := f.svc.GetStatusByID(context.Background(), d.DonorID, d.ID)
	require.Nil(t, err)
	assert.Equal(t, d.ID, view.ID)
	assert.Equal(t, models.DonationPending, view.Status)
	assert.Equal(t, int64(50000), view.Amount)
	assert.Equal(t, 500.0, view.AmountKES)
	assert.Equal(t, "Kenya Red Cross", view.CharityName)
	assert.Equal(t, "ws_CO_9", view.CheckoutRequestID)
	assert.Nil(t, view.MpesaReceiptNumber)
}

func TestGetStatusByID_OtherDonor(t *testing.T) {
	f := newDonationFixture()
	d := pendingDonation("ws_CO_9", 50000, time.Now())
	require.NoError(t, f.repo.Create(context.Background(), d))

	view, err := f.svc.GetStatusByID(context.Background(), uuid.New(), d.ID)
	assert.Nil(t, view)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
}

func TestGetStatusByID_Unknown(t *testing.T) {
	f := newDonationFixture()

	_, err := f.svc.GetStatusByID(context.Background(), uuid.New(), uuid.New())
	require.NotNil(t, err)
	assert.Equal(t, services.KindNotFound, err.Kind)
}

func TestGetStatusByCheckoutID_AfterSuccess(t *testing.T) {
	f := newDonationFixture()
	d := pendingDonation("ws_CO_9", 50000, time.Now())
	d.CharityID = f.charity.ID
	require.NoError(t, f.repo.Create(context.Background(), d))
	_, applyErr := f.repo.ApplyOutcome(context.Background(), "ws_CO_9", func(d *models.Donation) error {
		return d.MarkSucceeded("ABC123", time.Now())
	})
	require.NoError(t, applyErr)

	view, err := f.svc.GetStatusByCheckoutID(context.Background(), d.DonorID, "ws_CO_9")
	require.Nil(t, err)
	assert.Equal(t, models.DonationSuccess, view.Status)
	require.NotNil(t, view.MpesaReceiptNumber)
	assert.Equal(t, "ABC123", *view.MpesaReceiptNumber)
}

func TestGetStatus_CharityNameMissingStillReturnsStatus(t *testing.T) {
	f := newDonationFixture()
	d := pendingDonation("ws_CO_9", 50000, time.Now())
	require.NoError(t, f.repo.Create(context.Background(), d))

	view, err := f.svc.GetStatusByCheckoutID(context.Background(), d.DonorID, "ws_CO_9")
	require.Nil(t, err)
	assert.Empty(t, view.CharityName)
}

func TestInitiateThenCallback_StatusShowsReceipt(t *testing.T) {
	f := newDonationFixture()
	in := f.input()
	callbacks := services.NewCallbackService(f.repo, nil, nil, f.events, nil, zap.NewNop())

	res, err := f.svc.InitiateDonation(context.Background(), in)
	require.Nil(t, err)

	out := callbacks.ProcessCallback(context.Background(), successPayload("ws_CO_1", "ABC123", 500))
	assert.Equal(t, services.OutcomeSuccess, out.Status)
	assert.False(t, out.AlreadyProcessed)

	view, err := f.svc.GetStatusByCheckoutID(context.Background(), in.DonorID, "ws_CO_1")
	require.Nil(t, err)
	assert.Equal(t, res.Donation.ID, view.ID)
	assert.Equal(t, models.DonationSuccess, view.Status)
	require.NotNil(t, view.MpesaReceiptNumber)
	assert.Equal(t, "ABC123", *view.MpesaReceiptNumber)
	assert.Nil(t, view.FailureReason)
	assert.Equal(t, int64(50000), view.Amount)
	assert.Equal(t, "Kenya Red Cross", view.CharityName)
}
