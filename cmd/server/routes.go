package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uwinops/lancer/internal/course"
	"github.com/uwinops/lancer/internal/fetch"
	"github.com/uwinops/lancer/internal/index"
)

type searchIndex interface {
	Query(term, text string) ([]course.Preview, error)
	BeginRebuild() bool
	Rebuilding() bool
}

type detailScraper interface {
	ScrapeDetail(ctx context.Context, term, code string) (*course.Detail, error)
}

func newRouter(idx searchIndex, scraper detailScraper, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rebuilding": idx.Rebuilding()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/query", handleQuery(idx))
	api.GET("/courses/:term/:code", handleDetail(scraper))
	api.POST("/rebuild", handleRebuild(idx))

	return router
}

func handleQuery(idx searchIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		term := c.Query("term")
		text := c.Query("q")
		if term == "" || text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "term and q are required"})
			return
		}

		previews, err := idx.Query(term, text)
		if err != nil {
			var qe *index.QueryError
			if errors.As(err, &qe) {
				c.JSON(http.StatusBadRequest, gin.H{"error": qe.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}

		// Relevance decides which previews make the cut; the list itself
		// reads better ordered by code.
		sort.Slice(previews, func(i, j int) bool { return previews[i].Code < previews[j].Code })
		c.JSON(http.StatusOK, gin.H{"results": previews})
	}
}

func handleDetail(scraper detailScraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		term := c.Param("term")
		code := c.Param("code")

		detail, err := scraper.ScrapeDetail(c.Request.Context(), term, code)
		if err != nil {
			var te *fetch.TransportError
			if errors.As(err, &te) {
				c.JSON(http.StatusBadGateway, gin.H{"error": "portal unavailable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "course lookup failed"})
			return
		}
		if detail == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func handleRebuild(idx searchIndex) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := idx.BeginRebuild()
		c.JSON(http.StatusAccepted, gin.H{"started": started})
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}
