package router

import (
	"context"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/handler"
	"github.com/stemsi/exstem-authoring/internal/middleware"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/response"
	"github.com/stemsi/exstem-authoring/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Exam     *handler.ExamHandler
	Part     *handler.PartHandler
	Question *handler.QuestionHandler
	Media    *handler.MediaHandler
	WS       *handler.WSHandler
	Health   *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by the router, such as rate limiter
// housekeeping.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// Uploaded media is already compressed.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality: middleware.DefaultBrotliConfig.Quality,
		Skipper: func(c *gin.Context) bool {
			return strings.HasPrefix(c.Request.URL.Path, "/uploads/")
		},
	}))

	// Upload names are never reused, so files can be cached for a year.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000, true))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/health", middleware.NoStore(), handlers.Health.Health)

	// Login attempts per IP; per-email lockout is handled by AuthService.
	authLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(middleware.NoStore())
	{
		auth.POST("/admin/login", authLimiter.Middleware(), handlers.Auth.AdminLogin)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. WebSocket Group (token may come from the query) ────────────
	ws := router.Group("/ws/v1/admin")
	ws.Use(middleware.RequireAdminJWT(authService))
	{
		ws.GET("/exams/:id/events",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.WS.ExamEvents,
		)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService), middleware.NoStore())
	{
		read := middleware.RequirePermission(model.PermissionExamsRead)
		write := middleware.RequirePermission(model.PermissionExamsWrite)
		upload := middleware.RequirePermission(model.PermissionExamsWrite, model.PermissionMediaUpload)

		// Exams
		adminAPI.GET("/exams", read, handlers.Exam.ListExams)
		adminAPI.POST("/exams", write, handlers.Exam.CreateExam)
		adminAPI.GET("/exams/:id", read, handlers.Exam.GetExam)
		adminAPI.PUT("/exams/:id", write, handlers.Exam.UpdateExam)
		adminAPI.DELETE("/exams/:id", write, handlers.Exam.DeleteExam)

		// Parts
		adminAPI.POST("/exams/:id/parts", write, handlers.Part.CreatePart)
		adminAPI.PUT("/parts/:id", write, handlers.Part.UpdatePart)
		adminAPI.DELETE("/parts/:id", write, handlers.Part.DeletePart)

		// Questions
		adminAPI.POST("/parts/:id/questions", write, handlers.Question.CreateQuestion)
		adminAPI.PUT("/questions/:id", write, handlers.Question.UpdateQuestion)
		adminAPI.DELETE("/questions/:id", write, handlers.Question.DeleteQuestion)

		// Question media
		adminAPI.POST("/questions/:id/upload-image", upload, handlers.Media.UploadImage)
		adminAPI.POST("/questions/:id/upload-audio", upload, handlers.Media.UploadAudio)
	}

	return router
}
