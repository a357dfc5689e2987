package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/SagastaDev/equity-valuator/src/config"
	"github.com/SagastaDev/equity-valuator/src/database"
	"github.com/SagastaDev/equity-valuator/src/handlers"
	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/security"
	"github.com/SagastaDev/equity-valuator/src/services"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Equity valuator backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.SeedCanonicalFields()
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing resolution cache...")
	resolutionCache := cache.New(config.Cfg.ResolutionCacheExpiry, config.Cfg.ResolutionCacheCleanup)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	userHandler := handlers.NewUserHandler(authService)

	transformService := services.NewTransformService(database.DB, resolutionCache)
	ingestService := services.NewIngestService(database.DB, transformService)
	priceService := services.NewPriceService(database.DB, transformService)

	mappingHandler := handlers.NewMappingHandler(transformService)
	transformHandler := handlers.NewTransformHandler(transformService)
	companyHandler := handlers.NewCompanyHandler()
	rawDataHandler := handlers.NewRawDataHandler(ingestService)
	priceHandler := handlers.NewPriceHandler(priceService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)

	csrfProtection := handlers.CSRFMiddleware()

	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.Handle("POST /logout", userHandler.AuthMiddleware(http.HandlerFunc(userHandler.LogoutUserHandler)))
	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", csrfProtection(authActionRouter)))

	protected := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handler))
	}
	adminOnly := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handlers.RequireAdmin(handler)))
	}

	// Reference catalogue
	apiRouter.Handle("GET /api/companies", protected(companyHandler.HandleListCompanies))
	apiRouter.Handle("GET /api/companies/{id}", protected(companyHandler.HandleGetCompany))
	apiRouter.Handle("POST /api/companies", adminOnly(companyHandler.HandleCreateCompany))
	apiRouter.Handle("GET /api/providers", protected(companyHandler.HandleListProviders))
	apiRouter.Handle("POST /api/providers", adminOnly(companyHandler.HandleCreateProvider))
	apiRouter.Handle("GET /api/fields", protected(companyHandler.HandleListCanonicalFields))

	// Mapping rules (admin writes, audit trail, dry-run)
	apiRouter.Handle("GET /api/mappings", protected(mappingHandler.HandleListMappings))
	apiRouter.Handle("GET /api/mappings/{id}", protected(mappingHandler.HandleGetMapping))
	apiRouter.Handle("GET /api/mappings/{id}/changelog", protected(mappingHandler.HandleGetMappingChangeLog))
	apiRouter.Handle("POST /api/mappings", adminOnly(mappingHandler.HandleCreateMapping))
	apiRouter.Handle("PUT /api/mappings/{id}", adminOnly(mappingHandler.HandleUpdateMapping))
	apiRouter.Handle("DELETE /api/mappings/{id}", adminOnly(mappingHandler.HandleDeleteMapping))
	apiRouter.Handle("POST /api/mappings/test-transform", adminOnly(mappingHandler.HandleTestTransform))

	// Raw data ingestion and inspection
	apiRouter.Handle("POST /api/rawdata/upload", protected(rawDataHandler.HandleUpload))
	apiRouter.Handle("GET /api/rawdata", protected(rawDataHandler.HandleListRawData))

	// Canonical resolution
	apiRouter.Handle("GET /api/transform/{companyID}", protected(transformHandler.HandleResolve))
	apiRouter.Handle("GET /api/transform/{companyID}/history", protected(transformHandler.HandleResolveHistory))

	// Market quotes
	apiRouter.Handle("POST /api/prices/refresh", protected(priceHandler.HandleRefreshPrice))
	apiRouter.Handle("GET /api/prices", protected(priceHandler.HandleGetPriceHistory))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Equity valuator backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
