package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every route. Status routes are public; the rest require
// X-API-Key.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-API-Key"},
	}))

	r.GET("/", h.GetRoot)
	r.GET("/health", h.GetHealth)

	auth := r.Group("/", h.RequireAPIKey)
	auth.GET("/resumen/latest", h.GetLatest)
	auth.GET("/resumen/:fecha", h.GetByDate)
	auth.GET("/historico", h.GetHistory)
	auth.GET("/rss/list", h.GetFeeds)
	auth.POST("/scrape/run", h.PostRun)

	return r
}
