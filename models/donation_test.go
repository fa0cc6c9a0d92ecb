package models_test

import (
	"testing"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonation_MarkSucceeded(t *testing.T) {
	d := &models.Donation{Status: models.DonationPending, Amount: 50000}
	now := time.Now()

	require.NoError(t, d.MarkSucceeded("ABC123", now))
	assert.Equal(t, models.DonationSuccess, d.Status)
	require.NotNil(t, d.MpesaReceiptNumber)
	assert.Equal(t, "ABC123", *d.MpesaReceiptNumber)
	assert.Nil(t, d.FailureReason)
	assert.Equal(t, 500.0, d.AmountKES())

	assert.ErrorIs(t, d.MarkFailed("late failure", now), models.ErrDonationFinalized)
	assert.Equal(t, models.DonationSuccess, d.Status)
	assert.Nil(t, d.FailureReason)
}

func TestDonation_MarkFailed(t *testing.T) {
	d := &models.Donation{Status: models.DonationPending}

	require.NoError(t, d.MarkFailed("Request cancelled by user", time.Now()))
	assert.Equal(t, models.DonationFailed, d.Status)
	require.NotNil(t, d.FailureReason)
	assert.Equal(t, "Request cancelled by user", *d.FailureReason)
	assert.Nil(t, d.MpesaReceiptNumber)

	assert.ErrorIs(t, d.MarkSucceeded("XYZ", time.Now()), models.ErrDonationFinalized)
	assert.Nil(t, d.MpesaReceiptNumber)
}

func TestDonationStatus_IsTerminal(t *testing.T) {
	assert.False(t, models.DonationPending.IsTerminal())
	assert.True(t, models.DonationSuccess.IsTerminal())
	assert.True(t, models.DonationFailed.IsTerminal())
}
