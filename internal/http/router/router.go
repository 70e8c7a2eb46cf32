package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drew-quote-core/server/internal/http/handler"
	"github.com/drew-quote-core/server/internal/http/middleware"
)

type RouterConfig struct {
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// New builds the engine with the standard middleware chain and routes.
func New(chat *handler.ChatHandler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	// Order matters: request id first so recovery and the access log can report it
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	SetupRoutes(router, chat, cfg)
	return router
}

func SetupRoutes(router *gin.Engine, chat *handler.ChatHandler, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/drew")
	{
		api.POST("/chat", chat.Chat)
	}
}
