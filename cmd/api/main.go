package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taptrack/internal/auth"
	"taptrack/internal/broadcast"
	"taptrack/internal/config"
	"taptrack/internal/httpmiddleware"
	"taptrack/internal/metrics"
	"taptrack/internal/notify"
	"taptrack/internal/roster"
	"taptrack/internal/settings"
	"taptrack/internal/store"
	"taptrack/internal/tap"
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
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q notify.Queue
	if cfg.QueueBackend == "memory" {
		q = notify.NewInMemory(64)
	} else {
		q = notify.NewRedisQueue(redisClient.Client, "taptrack:notifications")
	}

	hub := broadcast.NewHub(cfg.MonitorBuffer)
	metrics.Register(hub)

	records := tap.NewPGRecordStore(db.Client)
	engine := tap.NewEngine(
		roster.New(db.Client),
		records,
		settings.New(db.Client, redisClient.Client, cfg.SettingsTTL, cfg.DefaultTapDelay),
		hub,
		notify.NewDispatcher(q),
		cfg.Timezone,
		cfg.PersistTimeout,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Devices authenticate with a pre-shared key; the limiter keys on
	// client IP so one chatty reader cannot starve the rest.
	deviceLimiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, nil)
	deviceGroup := r.Group("/v1", auth.DeviceKey(cfg.DeviceAPIKeys), deviceLimiter.Middleware())

	deviceGroup.POST("/taps/device", func(c *gin.Context) {
		var req struct {
			CredentialID string     `json:"credential_id" binding:"required"`
			ActorType    string     `json:"actor_type" binding:"required,oneof=student teacher"`
			Timestamp    *time.Time `json:"timestamp"`
			DeviceID     string     `json:"device_id" binding:"required"`
			LocationID   string     `json:"location_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		evt := tap.TapEvent{
			CredentialID: req.CredentialID,
			ActorType:    tap.ActorType(req.ActorType),
			Source:       tap.DeviceSource(req.DeviceID),
			LocationID:   req.LocationID,
		}
		if req.Timestamp != nil {
			evt.Timestamp = *req.Timestamp
		}
		respondTap(c, engine, evt)
	})

	adminGroup := r.Group("/v1", auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	adminGroup.POST("/taps/manual", func(c *gin.Context) {
		var req struct {
			CredentialID string `json:"credential_id" binding:"required"`
			ActorType    string `json:"actor_type" binding:"required,oneof=student teacher"`
			LocationID   string `json:"location_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		respondTap(c, engine, tap.TapEvent{
			CredentialID: req.CredentialID,
			ActorType:    tap.ActorType(req.ActorType),
			Source:       tap.SourceManual,
			LocationID:   req.LocationID,
		})
	})

	adminGroup.GET("/monitor", monitorHandler(hub))

	adminGroup.GET("/records/today", func(c *gin.Context) {
		day := time.Now().In(cfg.Timezone).Format("2006-01-02")
		recs, err := records.ListForDay(c.Request.Context(), day, 500)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"day": day, "records": recs})
	})

	// No WriteTimeout: the monitor stream is long-lived SSE.
	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// respondTap runs the engine and maps the outcome to the wire contract.
// Every rejection carries a stable reason code so a reader can pick a
// distinct LED/buzzer pattern.
func respondTap(c *gin.Context, engine *tap.Engine, evt tap.TapEvent) {
	out, err := engine.Process(c.Request.Context(), evt)
	if err != nil {
		reason := tap.Reason(err)
		metrics.TapsTotal.WithLabelValues(reason).Inc()
		c.JSON(tapStatus(err), gin.H{"reason": reason, "error": err.Error()})
		return
	}
	metrics.TapsTotal.WithLabelValues(string(out.Transition)).Inc()
	c.JSON(http.StatusOK, gin.H{"transition": out.Transition, "record": out.Record})
}

func tapStatus(err error) int {
	var pe *tap.PersistError
	switch {
	case errors.Is(err, tap.ErrUnknownCredential):
		return http.StatusNotFound
	case errors.Is(err, tap.ErrActorTypeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tap.ErrDuplicateTap),
		errors.Is(err, tap.ErrAlreadyDeparted),
		errors.Is(err, tap.ErrInvalidOrdering):
		return http.StatusConflict
	case errors.As(err, &pe):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// monitorHandler streams accepted taps to a live-monitor client over SSE.
// Subscriptions start from "now"; the /records/today snapshot covers the
// backlog.
func monitorHandler(hub *broadcast.Hub) gin.HandlerFunc {
	type envelope struct {
		Type      string            `json:"type"`
		Data      broadcast.Message `json:"data"`
		Timestamp time.Time         `json:"timestamp"`
	}
	return func(c *gin.Context) {
		sub := hub.Subscribe()
		defer sub.Close()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		keepalive := time.NewTicker(25 * time.Second)
		defer keepalive.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case msg, ok := <-sub.C():
				if !ok {
					return false
				}
				c.SSEvent("tap.received", envelope{Type: msg.Type, Data: msg, Timestamp: msg.Timestamp})
				return true
			case <-keepalive.C:
				c.SSEvent("ping", time.Now().Unix())
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

// CORS for the admin dashboard.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
