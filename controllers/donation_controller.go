package controllers

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/logger"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/middleware"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/services"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAmountKES keeps the minor-unit conversion inside int64.
const maxAmountKES = 1e12

// DonationRequest is the body of POST /donations/mpesa. Amount is in whole
// shillings.
type DonationRequest struct {
	CharityID   string   `json:"charity_id" binding:"required,uuid"`
	Amount      *float64 `json:"amount" binding:"required"`
	PhoneNumber string   `json:"phone_number" binding:"required"`
	Message     *string  `json:"message" binding:"omitempty,max=500"`
	IsAnonymous bool     `json:"is_anonymous"`
}

// DonationController handles the donor-facing M-Pesa endpoints.
type DonationController struct {
	donationService services.DonationService
	logger          *zap.Logger
}

func NewDonationController(svc services.DonationService, logger *zap.Logger) *DonationController {
	return &DonationController{donationService: svc, logger: logger}
}

// InitiateDonation handles POST /donations/mpesa
func (dc *DonationController) InitiateDonation(c *gin.Context) {
	donorID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, validationResponse(err))
		return
	}

	amount := *req.Amount
	if amount != math.Trunc(amount) || math.Abs(amount) > maxAmountKES {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "M-Pesa amounts must be whole shillings",
			"code":  services.KindInvalidAmount,
		})
		return
	}

	var message *string
	if req.Message != nil {
		if m := strings.TrimSpace(*req.Message); m != "" {
			message = &m
		}
	}

	res, svcErr := dc.donationService.InitiateDonation(c.Request.Context(), services.InitiateDonationInput{
		DonorID:     donorID,
		CharityID:   uuid.MustParse(req.CharityID),
		AmountMinor: int64(amount) * 100,
		Phone:       req.PhoneNumber,
		IsAnonymous: req.IsAnonymous,
		Message:     message,
	})
	if svcErr != nil {
		dc.renderError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"donation":            res.Donation,
		"checkout_request_id": res.CheckoutRequestID,
		"customer_message":    res.CustomerMessage,
	})
}

// GetStatus handles GET /donations/:id/status
func (dc *DonationController) GetStatus(c *gin.Context) {
	donorID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	donationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Donation not found", "code": services.KindNotFound})
		return
	}

	view, svcErr := dc.donationService.GetStatusByID(c.Request.Context(), donorID, donationID)
	if svcErr != nil {
		dc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetStatusByCheckoutID handles GET /donations/status/:checkout_id
func (dc *DonationController) GetStatusByCheckoutID(c *gin.Context) {
	donorID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	view, svcErr := dc.donationService.GetStatusByCheckoutID(c.Request.Context(), donorID, c.Param("checkout_id"))
	if svcErr != nil {
		dc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (dc *DonationController) renderError(c *gin.Context, svcErr *services.ServiceError) {
	if svcErr.StatusCode >= http.StatusInternalServerError {
		logger.ForRequest(dc.logger, c).Error("Donation request failed",
			zap.String("kind", string(svcErr.Kind)),
			zap.Error(svcErr),
		)
		_ = c.Error(svcErr)
	}
	c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "code": svcErr.Kind})
}

// validationResponse turns binding errors into a per-field message map.
func validationResponse(err error) gin.H {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return gin.H{"error": "Invalid request body", "code": "ValidationError"}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonName(fe.Field())] = fieldMessage(fe)
	}
	return gin.H{"error": "Invalid request", "code": "ValidationError", "fields": fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

var jsonNames = map[string]string{
	"CharityID":   "charity_id",
	"Amount":      "amount",
	"PhoneNumber": "phone_number",
	"Message":     "message",
}

func jsonName(field string) string {
	if n, ok := jsonNames[field]; ok {
		return n
	}
	return strings.ToLower(field)
}
