package route

import (
	"net/http"

	"detectserver/internal/config"
	"detectserver/internal/handler"
	"detectserver/internal/logger"
	"detectserver/internal/middleware"
	"detectserver/internal/repository"
	"detectserver/internal/service/auth"

	"github.com/rs/cors"
)

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Config   *config.Config
	Logger   *logger.Logger
	Users    repository.UserRepository
	Records  repository.DetectionRepository
	Issuer   *auth.TokenIssuer
	Runner   handler.DetectionRunner
	Models   handler.ModelCatalog
	Stats    handler.StatsComputer
	Progress handler.ProgressRegistry
}

// SetupRoutes registers the API, the annotated output files, and wraps the mux
// with authentication and CORS.
func SetupRoutes(s Services) http.Handler {
	cfg, logger := s.Config, s.Logger
	mux := http.NewServeMux()
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin)

	// Annotated outputs
	outputs := http.StripPrefix("/static/outputs/", http.FileServer(http.Dir(cfg.OutputDirectory)))
	mux.Handle("GET /static/outputs/", outputs)

	// Auth endpoints
	mux.HandleFunc("POST /register", handler.RegisterHandler(s.Users, logger))
	mux.HandleFunc("POST /login", handler.LoginHandler(s.Users, s.Issuer, logger))
	mux.HandleFunc("POST /logout", handler.LogoutHandler)
	mux.HandleFunc("GET /users/whoami", handler.WhoAmIHandler)
	mux.HandleFunc("DELETE /user/{id}", handler.DeleteUserHandler(s.Users, logger))

	// Detection endpoints
	mux.Handle("POST /yolo/detect_picture", limiter.Wrap(handler.DetectPictureHandler(s.Runner, cfg.Detector, logger)))
	mux.Handle("POST /yolo/detect_video", limiter.Wrap(handler.DetectVideoHandler(s.Runner, cfg.Detector, logger)))
	mux.HandleFunc("POST /yolo/change_model", handler.ChangeModelHandler(s.Models, logger))
	mux.HandleFunc("GET /yolo/available_models", handler.AvailableModelsHandler(s.Models, logger))
	mux.HandleFunc("GET /detection/history", handler.HistoryHandler(s.Records, logger))
	mux.HandleFunc("GET /detection/stats", handler.StatsHandler(s.Stats, logger))
	mux.HandleFunc("GET /ws/progress", handler.ProgressWebsocketHandler(s.Progress, logger))

	// Log endpoints, admin only
	adminOnly := middleware.RequireAdmin(cfg.AdminUsers)
	mux.Handle("GET /logs/{level}", adminOnly(handler.ShowLogsHandler(cfg, logger)))
	mux.Handle("POST /logs/{level}/clear", adminOnly(handler.ClearLogsHandler(logger)))

	mux.HandleFunc("GET /health", handler.HealthHandler(s.Models))

	// Apply middleware
	authed := middleware.AuthMiddleware(s.Issuer, s.Users, logger)(mux)
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(authed)
}
