package routes

import (
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/controllers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ServiceName = "donation-service"

// Deps bundles everything the router needs.
type Deps struct {
	Logger    *zap.Logger
	Metrics   middleware.HTTPMetrics
	JWTSecret []byte
	Donations *controllers.DonationController
	Callbacks *controllers.PaymentCallbackController
	Health    *controllers.HealthController
}

// NewRouter builds the gin engine with the global middleware chain.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(d.Logger),
		middleware.Timeout(30*time.Second),
		middleware.MetricsMiddleware(d.Metrics, ServiceName),
	)

	r.GET("/health", d.Health.Health)
	RegisterDonationRoutes(r, d.Donations, d.JWTSecret)
	RegisterPaymentRoutes(r, d.Callbacks)
	return r
}

func RegisterDonationRoutes(r *gin.Engine, dc *controllers.DonationController, jwtSecret []byte) {
	donations := r.Group("/donations")
	donations.Use(middleware.AuthMiddleware(jwtSecret))
	donations.POST("/mpesa", dc.InitiateDonation)
	donations.GET("/:id/status", dc.GetStatus)
	donations.GET("/status/:checkout_id", dc.GetStatusByCheckoutID)
}

// RegisterPaymentRoutes mounts the M-Pesa notification endpoints (no auth).
func RegisterPaymentRoutes(r *gin.Engine, pc *controllers.PaymentCallbackController) {
	payments := r.Group("/payments")
	payments.POST("/callback", pc.HandleCallback)
	payments.POST("/timeout", pc.HandleTimeout)
}
