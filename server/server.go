// Package server wires the HTTP surface: the streaming chat endpoint,
// the static landing document, and the middleware stack around them.
package server

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

type Config struct {
	ListenAddr         string   `envconfig:"LISTEN_ADDR" split_words:"true" default:"0.0.0.0:8080"`
	AllowedOrigins     []string `envconfig:"ALLOWED_ORIGINS" split_words:"true" default:"*"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" split_words:"true" default:"5"`
	StaticDir          string   `envconfig:"STATIC_DIR" split_words:"true" default:"web"`
}

// NewRouter builds the gin engine. The rate limit guards only the chat
// submission endpoint; static and health routes stay unthrottled.
func NewRouter(turns TurnHandler, cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	h := NewHandler(turns)
	limiter := NewRateLimiter(cfg.RateLimitPerMinute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(CORS(cfg.AllowedOrigins))

	r.GET("/", landing(cfg.StaticDir, h))
	r.GET("/healthz", h.HandleHealth)
	if cfg.StaticDir != "" {
		r.Static("/static", cfg.StaticDir)
	}

	api := r.Group("/api")
	api.POST("/chat", limiter.Middleware(), h.HandleChat)

	return r
}

// landing serves the static landing document when the widget assets are
// deployed alongside the binary, and degrades to the health document
// otherwise.
func landing(staticDir string, h *Handler) gin.HandlerFunc {
	index := filepath.Join(staticDir, "index.html")
	return func(c *gin.Context) {
		if staticDir != "" {
			if info, err := os.Stat(index); err == nil && !info.IsDir() {
				c.File(index)
				return
			}
		}
		h.HandleHealth(c)
	}
}
