package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/api/handlers"
	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/internal/metrics"
	"github.com/BaSui01/healthgraph/internal/server"
	"github.com/BaSui01/healthgraph/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 HealthGraph 的主服务器：API 端点与 metrics 端点由同一个
// server.Manager 管理，关闭时先停 HTTP 再释放存储连接。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	app       *app
	telemetry *telemetry.Providers
	manager   *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 装配组件并启动所有端点（非阻塞）。失败时已创建的资源会被释放。
func (s *Server) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.Shutdown(context.Background())
		}
	}()

	// 1. 链路追踪
	s.telemetry, err = telemetry.Init(ctx, s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		s.telemetry = nil
	}

	// 2. 存储与检索组件
	collector := metrics.NewCollector("healthgraph", s.logger)
	s.app, err = newApp(ctx, s.cfg, collector, s.logger)
	if err != nil {
		return err
	}
	if err := s.app.withRetrieval(); err != nil {
		return err
	}
	if err := s.app.withIndexer(); err != nil {
		return err
	}
	sessions, err := s.app.withChatStore(ctx)
	if err != nil {
		return err
	}
	if !sessions {
		s.logger.Info("database driver not configured, chat sessions disabled")
	}

	// 3. HTTP 端点
	s.manager = server.NewManager(server.FromAppConfig(s.cfg.Server), s.logger)
	apiAddr := fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	handler := s.buildHandler(collector)
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		err = s.manager.HandleTLS("api", apiAddr, handler, s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		err = s.manager.Handle("api", apiAddr, handler, nil)
	}
	if err != nil {
		return fmt.Errorf("register api endpoint: %w", err)
	}

	if s.cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		if err := s.manager.Handle("metrics", fmt.Sprintf(":%d", s.cfg.Server.MetricsPort), metricsMux, nil); err != nil {
			return fmt.Errorf("register metrics endpoint: %w", err)
		}
	}

	if err := s.manager.Start(); err != nil {
		return fmt.Errorf("start servers: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("api_addr", s.manager.Addr("api")),
		zap.String("metrics_addr", s.manager.Addr("metrics")),
		zap.Bool("sessions_enabled", sessions),
		zap.Bool("entity_cache_enabled", s.app.cache != nil),
		zap.Bool("auth_enabled", len(s.cfg.Server.APIKeys) > 0),
	)
	return nil
}

// buildHandler 注册路由并包上中间件链
func (s *Server) buildHandler(collector *metrics.Collector) http.Handler {
	a := s.app

	health := handlers.NewHealthHandler(Version, s.logger)
	health.RegisterCheck(handlers.NewCheck("neo4j", a.graph.Ping))
	if a.db != nil {
		health.RegisterCheck(handlers.NewCheck("database", a.db.Ping))
	}
	if a.cache != nil {
		health.RegisterCheck(handlers.NewCheck("redis", a.cache.Ping))
	}

	// 未启用时必须传 nil 接口，处理器据此返回 501
	var chats handlers.ChatStore
	if a.chats != nil {
		chats = a.chats
	}

	mux := http.NewServeMux()
	handlers.Routes{
		Health:    health,
		Retrieval: handlers.NewRetrievalHandler(a.retriever, a.answerer, chats, s.cfg.Retrieval.HistoryMessages, s.logger),
		Users:     handlers.NewUserHandler(a.writer, a.indexer, chats, s.logger),
		Sessions:  handlers.NewSessionHandler(chats, s.logger),
	}.Register(mux)

	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel
	skipAuthPaths := []string{"/health", "/ready"}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到 ctx 结束或某个端点异常退出，然后优雅关闭
func (s *Server) Wait(ctx context.Context) error {
	err := s.manager.Wait(ctx)
	s.Shutdown(context.Background())
	return err
}

// Shutdown 优雅关闭所有服务。重复调用安全。
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止接收请求
	if s.manager != nil {
		if err := s.manager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 释放存储连接
	if s.app != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s.app.close(closeCtx); err != nil {
			s.logger.Error("Store shutdown error", zap.Error(err))
		}
		cancel()
		s.app = nil
	}

	// 3. 刷新遥测数据
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
		s.telemetry = nil
	}

	s.logger.Info("Graceful shutdown completed")
}
