package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Config 服务器配置
type Config struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// FromAppConfig 从应用配置构造，未设置的字段使用默认值
func FromAppConfig(c config.ServerConfig) Config {
	cfg := DefaultConfig()
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.ShutdownTimeout
	}
	return cfg
}

// endpoint 一个监听端点（API 或 metrics）
type endpoint struct {
	name     string
	addr     string
	server   *http.Server
	listener net.Listener
}

// Manager 管理一组 HTTP 端点的启动与优雅关闭
type Manager struct {
	config    Config
	endpoints []*endpoint
	errCh     chan error
	logger    *zap.Logger
	mu        sync.RWMutex
	started   bool
	closed    bool
}

// NewManager 创建服务器管理器
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config: cfg,
		errCh:  make(chan error, 4),
		logger: logger.With(zap.String("component", "http_server")),
	}
}

// Handle 注册端点。tlsConfig 非 nil 时以 HTTPS 提供服务。必须在 Start 之前调用。
func (m *Manager) Handle(name, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return fmt.Errorf("cannot register %s after start", name)
	}
	m.endpoints = append(m.endpoints, &endpoint{
		name: name,
		addr: addr,
		server: &http.Server{
			Addr:           addr,
			Handler:        handler,
			ReadTimeout:    m.config.ReadTimeout,
			WriteTimeout:   m.config.WriteTimeout,
			IdleTimeout:    m.config.IdleTimeout,
			MaxHeaderBytes: m.config.MaxHeaderBytes,
			TLSConfig:      tlsConfig,
		},
	})
	return nil
}

// HandleTLS 加载证书后注册 HTTPS 端点
func (m *Manager) HandleTLS(name, addr string, handler http.Handler, certFile, keyFile string) error {
	tlsConfig, err := tlsutil.ServerTLSConfig(certFile, keyFile)
	if err != nil {
		return err
	}
	return m.Handle(name, addr, handler, tlsConfig)
}

// Start 监听所有端点并在后台提供服务（非阻塞）。
// 任一端点监听失败时关闭已打开的监听并返回错误。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("server is closed")
	}
	if m.started {
		return errors.New("server already started")
	}
	if len(m.endpoints) == 0 {
		return errors.New("no endpoints registered")
	}

	for i, ep := range m.endpoints {
		ln, err := net.Listen("tcp", ep.addr)
		if err != nil {
			for _, opened := range m.endpoints[:i] {
				_ = opened.listener.Close()
				opened.listener = nil
			}
			return fmt.Errorf("failed to listen on %s for %s: %w", ep.addr, ep.name, err)
		}
		ep.listener = ln
	}

	m.started = true
	for _, ep := range m.endpoints {
		m.logger.Info("starting server",
			zap.String("endpoint", ep.name),
			zap.String("addr", ep.listener.Addr().String()),
			zap.Bool("tls", ep.server.TLSConfig != nil),
		)
		go m.serve(ep)
	}
	return nil
}

func (m *Manager) serve(ep *endpoint) {
	var err error
	if ep.server.TLSConfig != nil {
		err = ep.server.ServeTLS(ep.listener, "", "")
	} else {
		err = ep.server.Serve(ep.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("server failed", zap.String("endpoint", ep.name), zap.Error(err))
		select {
		case m.errCh <- fmt.Errorf("%s: %w", ep.name, err):
		default:
		}
	}
}

// Shutdown 在 ShutdownTimeout 内优雅关闭所有端点。重复调用为空操作。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("shutting down servers")

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, ep := range m.endpoints {
		if err := ep.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", ep.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("servers stopped")
	return nil
}

// Wait 阻塞直到 ctx 结束（通常由信号触发）或某个端点异常退出，然后优雅关闭。
// 端点异常退出时返回该错误。
func (m *Manager) Wait(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
		m.logger.Info("shutdown requested", zap.Error(context.Cause(ctx)))
	case serveErr = <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(serveErr))
	}
	if err := m.Shutdown(context.Background()); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// Errors returns asynchronous serve errors.
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回端点的实际监听地址，未启动时返回配置地址
func (m *Manager) Addr(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ep := range m.endpoints {
		if ep.name != name {
			continue
		}
		if ep.listener != nil {
			return ep.listener.Addr().String()
		}
		return ep.addr
	}
	return ""
}

// IsRunning 检查服务器是否运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started && !m.closed
}
