package realtime

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/config"
)

// Server 实时投递服务器
// 每个会话一个 goroutine，客户端用单个双向流收发全部事件
type Server struct {
	cfg              *config.RealtimeConfig
	logger           *slog.Logger
	connMgr          *Manager
	handler          *Handler
	wtServer         *webtransport.Server
	heartbeatChecker *HeartbeatChecker
	wg               sync.WaitGroup
}

func NewServer(cfg *config.RealtimeConfig, connMgr *Manager, handler *Handler, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		connMgr: connMgr,
		handler: handler,
	}
}

func (s *Server) Start(ctx context.Context) error {
	tlsConfig, err := s.loadTLSConfig()
	if err != nil {
		return err
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  s.cfg.MaxIdleTimeout,
		KeepAlivePeriod: s.cfg.KeepAlivePeriod,
		EnableDatagrams: true, // WebTransport 需要启用数据报支持
	}

	s.wtServer = &webtransport.Server{
		H3: http3.Server{
			Addr:       s.cfg.Addr,
			TLSConfig:  tlsConfig,
			QUICConfig: quicConfig,
		},
		CheckOrigin: func(r *http.Request) bool {
			// TODO: 生产环境应该检查 Origin
			return true
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/realtime", func(w http.ResponseWriter, r *http.Request) {
		session, err := s.wtServer.Upgrade(w, r)
		if err != nil {
			s.logger.Error("WebTransport upgrade failed", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleSession(ctx, session)
	})

	s.wtServer.H3.Handler = mux

	s.heartbeatChecker = NewHeartbeatChecker(
		s.connMgr,
		s.cfg.HeartbeatTimeout,
		s.cfg.HeartbeatCheckInterval,
		s.logger,
		func(conn *Connection) {
			s.handler.OnDisconnect(ctx, conn)
		},
	)
	go s.heartbeatChecker.Start(ctx)

	s.logger.Info("Realtime server starting", "addr", s.cfg.Addr)
	return s.wtServer.ListenAndServe()
}

func (s *Server) handleSession(ctx context.Context, session *webtransport.Session) {
	defer s.wg.Done()

	c := NewConnection(session, s.logger)
	s.connMgr.Add(c)
	defer s.handler.OnDisconnect(ctx, c)

	// 客户端只用这一个双向流，首帧应为 setup
	stream, err := session.AcceptStream(ctx)
	if err != nil {
		return
	}

	s.handler.HandleStream(ctx, c, stream)
}

func (s *Server) ConnManager() *Manager {
	return s.connMgr
}

func (s *Server) Shutdown() {
	if s.wtServer != nil {
		s.wtServer.Close()
	}
	s.wg.Wait()
}

func (s *Server) loadTLSConfig() (*tls.Config, error) {
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Loaded TLS certificate",
			"cert_file", s.cfg.CertFile,
			"key_file", s.cfg.KeyFile)
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h3", "webtransport"},
			MinVersion:   tls.VersionTLS13,
		}, nil
	}

	// 开发环境：生成自签名证书
	s.logger.Warn("No TLS certificate configured, using self-signed certificate")
	return generateSelfSignedTLSConfig()
}
