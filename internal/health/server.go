package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"anonrelay-bot/internal/common/config"
)

// NewServer builds the liveness/export HTTP server: a probe at / and the
// raw log file download at /logs.
func NewServer(cfg *config.Config) *http.Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.Server.Origin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "anonrelay-bot",
		})
	})

	router.GET("/logs", func(c *gin.Context) {
		c.FileAttachment(cfg.LogFile, "logs.txt")
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
