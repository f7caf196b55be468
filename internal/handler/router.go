package handler

import (
	"net/http"
	"strings"

	"propsearch/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// NewRouter wires every HTTP route
func NewRouter(cfg config.ServerConfig, build BuildInfo, search *SearchHandler, listings *ListingHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitCSV(cfg.AllowedOrigins)
	corsConfig.AllowMethods = splitCSV(cfg.AllowedMethods)
	corsConfig.AllowHeaders = splitCSV(cfg.AllowedHeaders)
	if len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "property-search",
			"version":    build.Version,
			"build_time": build.BuildTime,
			"git_commit": build.GitCommit,
		})
	})

	// Version endpoint
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, build)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		// Search endpoints
		apiV1.POST("/search", search.Search)
		apiV1.POST("/search/stream", search.SearchStream)

		// Listing endpoints
		apiV1.POST("/listings", listings.Upsert)
		apiV1.GET("/listings/:id", listings.Get)
		apiV1.DELETE("/listings/:id", listings.Delete)
		apiV1.GET("/stats", listings.Stats)
	}

	return router
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
