package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/logger"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxCallbackBody   = 1 << 20
	callbackProcessTO = 20 * time.Second
)

// acceptedAck is the only answer M-Pesa ever gets; anything else triggers
// provider retries.
var acceptedAck = gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

// PaymentCallbackController receives asynchronous M-Pesa notifications.
type PaymentCallbackController struct {
	callbacks services.CallbackService
	logger    *zap.Logger
}

func NewPaymentCallbackController(svc services.CallbackService, logger *zap.Logger) *PaymentCallbackController {
	return &PaymentCallbackController{callbacks: svc, logger: logger}
}

// HandleCallback handles POST /payments/callback
func (pc *PaymentCallbackController) HandleCallback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		logger.ForRequest(pc.logger, c).Warn("Failed to read M-Pesa callback body", zap.Error(err))
		c.JSON(http.StatusOK, acceptedAck)
		return
	}

	// The provider hanging up must not abort a half-applied transition.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), callbackProcessTO)
	defer cancel()

	outcome := pc.callbacks.ProcessCallback(ctx, raw)
	logger.ForRequest(pc.logger, c).Info("M-Pesa callback handled",
		zap.String("outcome", outcome.Label()),
		zap.String("final_status", string(outcome.FinalStatus)),
	)
	c.JSON(http.StatusOK, acceptedAck)
}

// HandleTimeout handles POST /payments/timeout
func (pc *PaymentCallbackController) HandleTimeout(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err == nil {
		pc.callbacks.RecordTimeout(c.Request.Context(), raw)
	}
	c.JSON(http.StatusOK, acceptedAck)
}
