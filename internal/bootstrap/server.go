package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/terminbooking/config"
	"github.com/Domenick1991/terminbooking/internal/logger"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Handler registers its endpoints on a route group.
type Handler interface {
	Register(router *gin.RouterGroup)
}

// Route mounts a handler under a path below /api/v1.
type Route struct {
	Prefix  string
	Handler Handler
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg config.HTTPConfig, log *zap.Logger, routes ...Route) error {
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           NewRouter(cfg, log, routes...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("address", cfg.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http %s: %w", cfg.Address, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Info("HTTP server stopped")
		return nil
	}
}

// NewRouter builds the gin engine: request logging, panic recovery, the
// versioned API and, when a swagger directory is configured, the API docs.
func NewRouter(cfg config.HTTPConfig, log *zap.Logger, routes ...Route) *gin.Engine {
	router := gin.New()
	router.Use(logger.Middleware(log), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	for _, r := range routes {
		r.Handler.Register(v1.Group(r.Prefix))
	}

	if cfg.SwaggerDir != "" {
		router.Static("/swagger", cfg.SwaggerDir)
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/openapi.json"))))
	}
	return router
}
