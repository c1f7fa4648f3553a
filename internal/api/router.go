package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Skufu/medassist/internal/dashboard"
	"github.com/Skufu/medassist/internal/logging"
)

const maxJSONBody = 1 << 20

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Controller *dashboard.Controller
	// DB is optional; readiness reports it as disabled when nil.
	DB             HealthChecker
	StaticRoot     string
	MaxUploadBytes int64
}

func NewRouter(opts Options) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	h := &handler{ctrl: opts.Controller}

	router := gin.New()
	router.Use(
		logging.RequestLogger(),
		gin.Recovery(),
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	if opts.StaticRoot != "" && fileExists(filepath.Join(opts.StaticRoot, "index.html")) {
		router.Static("/static", opts.StaticRoot)
		router.StaticFile("/", filepath.Join(opts.StaticRoot, "index.html"))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readiness(opts.DB))

	api := router.Group("/api")
	api.POST("/imaging", limitBodySize(opts.MaxUploadBytes), h.uploadImage)
	api.GET("/imaging", h.analysisStatus)
	api.DELETE("/imaging", h.cancelAnalysis)
	api.GET("/imaging/events", h.analysisEvents)

	jsonAPI := api.Group("", limitBodySize(maxJSONBody))
	jsonAPI.GET("/conditions", h.listConditions)
	jsonAPI.GET("/conditions/:id", h.getCondition)
	jsonAPI.GET("/symptoms/suggested", h.suggestedSymptoms)
	jsonAPI.GET("/patient", h.getPatient)
	jsonAPI.PUT("/patient", h.updatePatient)
	jsonAPI.POST("/patient/symptoms", h.addSymptom)
	jsonAPI.DELETE("/patient/symptoms", h.removeSymptom)
	jsonAPI.GET("/diagnosis", h.diagnose)
	jsonAPI.POST("/diagnosis/score", h.scoreSymptoms)
	jsonAPI.GET("/vitals", h.vitals)
	jsonAPI.GET("/dashboard", h.overview)
	jsonAPI.PUT("/dashboard/tab", h.setTab)

	return router
}

func readiness(db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     fmt.Sprintf("unhealthy: %v", err),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
