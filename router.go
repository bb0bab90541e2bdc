package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/handler"
	"github.com/choraleia/parlance/pkg/models"
	"github.com/choraleia/parlance/pkg/service"
	"github.com/choraleia/parlance/pkg/utils"
	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg       *config.AppConfig
	ginEngine *gin.Engine
	app       *App
	logger    *slog.Logger
	port      int
}

func NewServer(cfg *config.AppConfig, app *App) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.MaxMultipartMemory = 8 << 20
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(requestLogger(utils.GetLogger()))
	ginEngine.Use(corsMiddleware(cfg.Server.CORSOrigins))

	attachStatic(ginEngine, cfg.Server.StaticDir)

	server := &Server{
		cfg:       cfg,
		ginEngine: ginEngine,
		app:       app,
		logger:    utils.GetLogger(),
		port:      cfg.Port(),
	}

	server.SetupRoutes()

	return server
}

// corsMiddleware allows localhost origins plus the configured ones. Cookies
// carry the session, so credentials are allowed and the origin is echoed.
func corsMiddleware(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := slices.Contains(origins, origin) ||
				strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request rejected", attrs...)
		default:
			logger.Debug("Request served", attrs...)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host(), fmt.Sprint(s.cfg.Port()))
	srv := &http.Server{Addr: addr, Handler: s.ginEngine, ReadHeaderTimeout: 10 * time.Second}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	// Record the actual port (useful when configured as 0).
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Non-blocking: if startup fails immediately return error; otherwise return nil to let main continue
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

func (s *Server) SetupRoutes() {
	chatHandler := handler.NewChatHandler(s.app.ChatService)

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Runtime info for clients discovering the base URL
	apiGroup.GET("/runtime", func(c *gin.Context) {
		host := s.cfg.Host()
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		c.JSON(http.StatusOK, models.RuntimeInfo{
			HTTPBaseURL: "http://" + net.JoinHostPort(host, fmt.Sprint(s.port)),
			Port:        s.port,
			Model:       s.cfg.LLM.DefaultModel,
		})
	})

	// Session-scoped routes
	// /api/chat, /api/conversations, /api/uploads
	sessionGroup := apiGroup.Group("")
	sessionGroup.Use(handler.SessionMiddleware(s.app.Sessions, s.cfg.Session))
	chatHandler.RegisterRoutes(sessionGroup)

	s.ginEngine.NoRoute(func(c *gin.Context) {
		if serveIndexFallback(c, s.cfg.Server.StaticDir) {
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// App holds the wired services behind the HTTP surface.
type App struct {
	ChatService *service.ChatService
	Sessions    service.SessionStore
	close       func() error
}

func (a *App) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}
