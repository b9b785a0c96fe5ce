package main

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventpass/internal/auth"
	"eventpass/internal/config"
	"eventpass/internal/httpmiddleware"
	"eventpass/internal/metrics"
	"eventpass/internal/queue"
	"eventpass/internal/registry"
	"eventpass/internal/store"
	"eventpass/internal/ticketcdn"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var redisClient *store.Redis
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	svc := registry.NewService(st, cfg.BaseURL)

	// Cloudinary client (nil when not configured)
	var cdn *ticketcdn.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdn = ticketcdn.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("ticket CDN configured:", cfg.CloudinaryCloudName)
	}

	r := buildRouter(cfg, svc, q, redisClient, cdn)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (store=%s)", cfg.HTTPPort, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

func buildRouter(cfg config.App, svc *registry.Service, q queue.Queue, redisClient *store.Redis, cdn *ticketcdn.Client) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		_, storeErr := svc.Stats(c.Request.Context())
		redisHealthy := redisClient == nil || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if storeErr != nil || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "store": storeErr == nil, "redis": redisHealthy})
	})

	r.POST("/v1/register", func(c *gin.Context) {
		var req registry.RegistrationInput
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.Registrations.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "body must be a JSON registration"})
			return
		}

		tkt, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			var invalid *registry.InvalidInputError
			switch {
			case errors.As(err, &invalid):
				metrics.Registrations.WithLabelValues("invalid").Inc()
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "invalid_input", "field": invalid.Field, "message": invalid.Error(),
				})
			case errors.Is(err, registry.ErrDuplicateEmail):
				metrics.Registrations.WithLabelValues("duplicate").Inc()
				c.JSON(http.StatusConflict, gin.H{
					"error": "duplicate_email", "message": "this email is already registered",
				})
			default:
				metrics.Registrations.WithLabelValues("error").Inc()
				log.Printf("register failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "persistence_error", "message": "failed to register attendee",
				})
			}
			return
		}
		metrics.Registrations.WithLabelValues("created").Inc()

		if c.Query("format") == "json" {
			resp := gin.H{
				"qr_data_url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(tkt.PNG),
				"filename":    tkt.Filename,
			}
			if cdn != nil {
				if up, err := cdn.UploadTicket(tkt.PNG, tkt.Filename); err != nil {
					log.Printf("ticket cdn upload failed: %v", err)
				} else {
					resp["ticket_url"] = up.SecureURL
				}
			}
			c.JSON(http.StatusCreated, resp)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+tkt.Filename+`"`)
		c.Data(http.StatusCreated, "image/png", tkt.PNG)
	})

	r.POST("/v1/checkin", func(c *gin.Context) {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "token required"})
			return
		}

		res, err := svc.CheckIn(c.Request.Context(), req.Token)
		if err != nil {
			metrics.Checkins.WithLabelValues("error").Inc()
			log.Printf("checkin failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "persistence_error", "message": "failed to check in",
			})
			return
		}
		metrics.Checkins.WithLabelValues(string(res.Status)).Inc()

		// Audit is best effort; a broker hiccup must not turn a valid scan
		// into an operator-visible failure.
		ev := registry.ScanEvent{
			Token:     req.Token,
			Status:    res.Status,
			Name:      res.Name,
			ScannedAt: time.Now().UTC(),
		}
		if err := q.Publish(c.Request.Context(), ev); err != nil {
			log.Printf("scan event publish failed: %v", err)
		}

		c.JSON(http.StatusOK, res)
	})

	r.POST("/v1/admin/login", func(c *gin.Context) {
		var req struct {
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
			return
		}
		if cfg.AdminPassword == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin access not configured"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(cfg.AdminPassword)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
			return
		}

		tokens, err := auth.Issue("admin", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	admin := r.Group("/v1/admin", auth.AdminOnly(cfg.JWTSigningKey, cfg.JWTIssuer))

	admin.GET("/attendees", func(c *gin.Context) {
		if email := c.Query("email"); email != "" {
			att, err := svc.Lookup(c.Request.Context(), email)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if att == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "no attendee with that email"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"attendee": att})
			return
		}

		attendees, err := svc.Attendees(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		stats, err := svc.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendees": attendees, "stats": stats})
	})

	admin.GET("/scans", func(c *gin.Context) {
		limit := 100
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		scans, err := svc.Scans(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scans": scans})
	})

	admin.POST("/reset", func(c *gin.Context) {
		var req struct {
			Confirm bool `json:"confirm"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reset requires {\"confirm\": true}"})
			return
		}
		if err := svc.Reset(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		metrics.Resets.Inc()
		log.Println("store reset by admin")
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	})

	return r
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
