package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smart_parkai/internal/api/handler"
	"smart_parkai/internal/api/middleware"
	"smart_parkai/internal/logger"
	"smart_parkai/internal/service"
)

type Services struct {
	Auth        *service.AuthService
	Bookings    *service.BookingService
	Payments    *service.PaymentService
	Detection   *service.DetectionService
	Transcriber service.Transcriber
	WebSockets  *handler.WebSocketManager

	StripePublishableKey  string
	CommandRequestsPerMin int
}

func SetupRouter(s Services, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)
	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	if s.WebSockets != nil {
		wsHandler := handler.NewWebSocketHandler(s.WebSockets)
		r.GET("/ws", wsHandler.HandleWebSocket)
	}

	if s.Payments != nil {
		payH := handler.NewPaymentHandler(s.Payments, s.StripePublishableKey)
		r.GET("/config", payH.GetConfig)
		r.POST("/webhook", payH.Webhook)
		payRoutes := r.Group("/api/payment")
		{
			payRoutes.POST("/initialize", payH.Initialize)
			payRoutes.GET("/details/:id", payH.GetDetails)
		}
	}

	if s.Auth != nil {
		authHandler := handler.NewAuthHandler(s.Auth)
		authRoutes := r.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
		}
	}

	limiter := middleware.NewRateLimiter(s.CommandRequestsPerMin, log)

	v1 := r.Group("/api/v1")
	{
		bookingH := handler.NewBookingHandler(s.Bookings, s.Transcriber)
		v1.GET("/booking-options", bookingH.GetOptions)

		sessionRoutes := v1.Group("/booking-sessions")
		{
			sessionRoutes.POST("", bookingH.StartSession)
			sessionRoutes.GET("/:id", bookingH.GetSession)
			sessionRoutes.DELETE("/:id", bookingH.DiscardSession)
			sessionRoutes.POST("/:id/commands", limiter.Middleware(), bookingH.ApplyCommand)
			sessionRoutes.POST("/:id/voice", limiter.Middleware(), bookingH.ApplyVoice)
			sessionRoutes.PATCH("/:id/selection", bookingH.UpdateSelection)
			sessionRoutes.POST("/:id/promo", bookingH.ApplyPromo)
			sessionRoutes.GET("/:id/quote", bookingH.GetQuote)
			sessionRoutes.POST("/:id/checkout", bookingH.Checkout)
		}

		if s.Detection != nil {
			detH := handler.NewDetectionHandler(s.Detection)
			v1.GET("/parking-lot/main", detH.GetMainLot)
			v1.POST("/detect-spots", limiter.Middleware(), detH.DetectSpots)
		}

		if s.Auth != nil {
			authMw := middleware.NewAuthMiddleware(s.Auth, log)
			recordH := handler.NewRecordHandler(s.Bookings)
			recordRoutes := v1.Group("/bookings")
			recordRoutes.Use(authMw.Authenticate(), authMw.AuthorizeRole("admin", "operator"))
			{
				recordRoutes.GET("", recordH.FindBookings)
				recordRoutes.GET("/export", recordH.ExportBookings)
				recordRoutes.GET("/:id", recordH.GetBooking)
			}
		}
	}
	return r
}
