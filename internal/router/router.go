package router

import (
	"net/http"

	"voyago/config"
	"voyago/internal/cache"
	"voyago/internal/handler"
	"voyago/internal/jobs"
	"voyago/internal/middleware"
	"voyago/internal/monitoring"
	"voyago/internal/repository"
	"voyago/internal/service"
	"voyago/internal/ws"
	"voyago/pkg/cloudinary"
	"voyago/pkg/pinetwork"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup wires the full dependency graph and returns the HTTP engine
// along with the payment service, which the background worker shares.
func Setup(
	cfg *config.Config,
	db *gorm.DB,
	rdb *redis.Client,
	cloud cloudinary.Client,
	pi *pinetwork.Client,
	hub *ws.Hub,
	jobsClient *jobs.Client,
	logger *zap.Logger,
) (*gin.Engine, *service.PaymentService) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(monitoring.GinMiddleware())

	// Repositories
	userRepo := repository.NewUserRepository(db)
	hotelRepo := repository.NewHotelRepository(db)
	attractionRepo := repository.NewAttractionRepository(db)
	restaurantRepo := repository.NewRestaurantRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	rewardRepo := repository.NewRewardRepository(db)
	favRepo := repository.NewFavoriteRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	securityRepo := repository.NewSecurityLogRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	adminRepo := repository.NewAdminRepository(db)

	appCache := cache.New(rdb, logger)

	// Services
	authSvc := service.NewAuthService(cfg, userRepo, pi)
	fcmSvc := service.NewFCMService(cfg.Firebase.ServiceAccountPath, logger)
	if fcmSvc != nil {
		logger.Info("push notifications enabled")
	} else if cfg.Firebase.ServiceAccountPath == "" {
		logger.Info("push notifications disabled, set FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}
	notifSvc := service.NewNotificationService(notificationRepo, userRepo, fcmSvc)
	bookingSvc := service.NewBookingService(bookingRepo, hotelRepo, attractionRepo, restaurantRepo,
		paymentRepo, userRepo, auditRepo, securityRepo, notifSvc, logger)
	paymentSvc := service.NewPaymentService(db, cfg, pi, paymentRepo, bookingRepo, userRepo,
		rewardRepo, auditRepo, securityRepo, notifSvc, hub, jobsClient, logger)
	referralSvc := service.NewReferralService(referralRepo, rewardRepo, settingRepo, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, auditRepo)
	googleOAuthHandler := handler.NewGoogleOAuthHandler(cfg, authSvc, auditRepo)
	hotelHandler := handler.NewHotelHandler(hotelRepo, appCache, cloud)
	attractionHandler := handler.NewAttractionHandler(attractionRepo, appCache)
	restaurantHandler := handler.NewRestaurantHandler(restaurantRepo, appCache)
	reviewHandler := handler.NewReviewHandler(reviewRepo, hotelRepo, appCache)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	piWebhookHandler := handler.NewPiWebhookHandler(paymentSvc, &cfg.Pi)
	meHandler := handler.NewMeHandler(userRepo, rewardRepo, cloud)
	favoriteHandler := handler.NewFavoriteHandler(favRepo, hotelRepo, attractionRepo, restaurantRepo)
	referralHandler := handler.NewReferralHandler(referralSvc)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)
	adminHandler := handler.NewAdminHandler(adminRepo, userRepo, rewardRepo, securityRepo,
		auditRepo, settingRepo, paymentSvc, authSvc)

	authMw := middleware.AuthRequired(&cfg.JWT)
	rateMw := middleware.RateLimit(middleware.NewRateLimiter(rdb, &cfg.RateLimit, logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", monitoring.Handler())

	api := r.Group("/api/v1")
	{
		// Provider callbacks skip the rate limiter; the signature check
		// in the handler is the gate.
		api.POST("/webhooks/pi", piWebhookHandler.Handle)

		public := api.Group("")
		public.Use(rateMw)
		{
			authGroup := public.Group("/auth")
			{
				authGroup.POST("/register", authHandler.Register)
				authGroup.POST("/login", authHandler.Login)
				authGroup.POST("/pi", authHandler.PiLogin)
				authGroup.POST("/refresh", authHandler.Refresh)
				authGroup.GET("/google", googleOAuthHandler.Redirect)
				authGroup.GET("/google/callback", googleOAuthHandler.Callback)
				authGroup.POST("/google/token", googleOAuthHandler.Token)
			}
			public.POST("/admin/login", adminHandler.AdminLogin)

			public.GET("/hotels", hotelHandler.List)
			public.GET("/hotels/:id", hotelHandler.Get)
			public.GET("/hotels/:id/reviews", reviewHandler.ListByHotel)
			public.GET("/attractions", attractionHandler.List)
			public.GET("/attractions/:id", attractionHandler.Get)
			public.GET("/restaurants", restaurantHandler.List)
			public.GET("/restaurants/:id", restaurantHandler.Get)
		}

		authed := api.Group("")
		authed.Use(authMw, rateMw)
		{
			authed.POST("/auth/logout", authHandler.Logout)
			authed.PATCH("/auth/change-password", authHandler.ChangePassword)
			authed.POST("/auth/pi/link", authHandler.LinkPi)

			authed.POST("/hotels/:id/reviews", reviewHandler.Create)

			authed.POST("/bookings", bookingHandler.Create)
			authed.GET("/bookings", bookingHandler.List)
			authed.GET("/bookings/:id", bookingHandler.Get)
			authed.POST("/bookings/:id/cancel", bookingHandler.Cancel)

			payments := authed.Group("/payments")
			{
				payments.POST("", paymentHandler.Create)
				payments.GET("", paymentHandler.List)
				payments.POST("/approve", middleware.PiLinkRequired(userRepo), paymentHandler.Approve)
				payments.POST("/complete", paymentHandler.Complete)
				payments.GET("/verify/:payment_id", paymentHandler.Verify)
				payments.GET("/:id", paymentHandler.Get)
				payments.POST("/:id/cancel", paymentHandler.Cancel)
				payments.POST("/:id/refund", paymentHandler.Refund)
			}

			me := authed.Group("/me")
			{
				me.GET("/profile", meHandler.GetProfile)
				me.PATCH("/profile", meHandler.UpdateProfile)
				me.POST("/avatar", meHandler.UploadAvatar)
				me.POST("/fcm-token", meHandler.RegisterFCMToken)
				me.GET("/rewards", meHandler.GetRewards)
				me.GET("/notifications", notificationHandler.List)
				me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
				me.GET("/favorites", favoriteHandler.List)
				me.GET("/referral-code", referralHandler.GetCode)
				me.GET("/referrals", referralHandler.ListMine)
			}
			authed.POST("/favorites", favoriteHandler.Toggle)
			authed.POST("/referrals/claim", referralHandler.Claim)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired(), rateMw)
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/analytics", adminHandler.Analytics)
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PATCH("/users/:id", adminHandler.UpdateUser)
			admin.POST("/users/:id/rewards", adminHandler.AdjustReward)
			admin.GET("/payments", adminHandler.ListPayments)
			admin.POST("/payments/:id/refund", adminHandler.RefundPayment)
			admin.POST("/reconcile", adminHandler.Reconcile)
			admin.GET("/bookings", adminHandler.ListBookings)
			admin.GET("/security-logs", adminHandler.ListSecurityLogs)
			admin.GET("/audit-logs", adminHandler.ListAuditLogs)
			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)

			admin.POST("/hotels", hotelHandler.Create)
			admin.PATCH("/hotels/:id", hotelHandler.Update)
			admin.DELETE("/hotels/:id", hotelHandler.Delete)
			admin.POST("/hotels/:id/images", hotelHandler.UploadImage)
			admin.DELETE("/hotels/:id/images/:imageId", hotelHandler.DeleteImage)
			admin.POST("/attractions", attractionHandler.Create)
			admin.PATCH("/attractions/:id", attractionHandler.Update)
			admin.DELETE("/attractions/:id", attractionHandler.Delete)
			admin.POST("/restaurants", restaurantHandler.Create)
			admin.PATCH("/restaurants/:id", restaurantHandler.Update)
			admin.DELETE("/restaurants/:id", restaurantHandler.Delete)
		}
	}

	r.GET("/ws/payments", ws.UpgradePaymentWS(&cfg.JWT, hub))

	return r, paymentSvc
}
