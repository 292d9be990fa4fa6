package hub

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/relayctl/internal/observability"
	"github.com/danmuck/relayctl/internal/protocol"
	"github.com/danmuck/relayctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Hub endpoint configuration.
type ServiceConfig struct {
	ListenAddr       string
	HubID            string
	AdminListenAddr  string
	AdminCORSOrigins []string
	Session          session.Config

	// Output receives operator-facing text. Defaults to os.Stdout.
	Output io.Writer
}

// Hub defaults for the agent endpoint.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:       ":5050",
		HubID:            "hub",
		AdminListenAddr:  "",
		AdminCORSOrigins: []string{"http://localhost:3000"},
		Session:          session.DefaultConfig(),
	}
}

// Service runs the hub: accept loop, per-connection handlers, operator console.
type Service struct {
	cfg ServiceConfig

	registry   *Registry
	console    *Console
	dispatcher *Dispatcher
	sink       atomic.Pointer[sinkRef]

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	startedAt   time.Time
	ready       atomic.Bool
	stopped     atomic.Bool
	sessionsNow atomic.Int64
}

// Hub service constructor using default configuration.
func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

// Hub service constructor using explicit configuration.
func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if strings.TrimSpace(cfg.HubID) == "" {
		cfg.HubID = def.HubID
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	cfg.Session = cfg.Session.WithDefaults()

	registry := NewRegistry()
	console := NewConsole(cfg.Output)
	s := &Service{
		cfg:        cfg,
		registry:   registry,
		console:    console,
		dispatcher: NewDispatcher(cfg.HubID, registry, console),
		conns:      make(map[net.Conn]struct{}),
		startedAt:  time.Now(),
	}
	s.sink.Store(&sinkRef{console})
	return s
}

type sinkRef struct {
	Sink
}

func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// SetSink replaces the operator sink for inbound agent messages. It is safe
// to call while serving; nil restores the console.
func (s *Service) SetSink(sink Sink) {
	if sink == nil {
		sink = s.console
	}
	s.sink.Store(&sinkRef{sink})
}

// Hub runtime entrypoint reading operator lines from stdin until stop or signal.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx, os.Stdin)
}

// RunContext serves agents and the operator console until `stop` or ctx is
// done. Returns nil for both.
func (s *Service) RunContext(ctx context.Context, in io.Reader) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.RunListener(ctx, ln, in)
}

// RunListener is RunContext on an existing listener.
func (s *Service) RunListener(ctx context.Context, ln net.Listener, in io.Reader) error {
	log.Info().Str("addr", ln.Addr().String()).Str("hub_id", s.cfg.HubID).Msg("hub.Service.Run listening")

	// Listeners outlive ctx until the console path has sent DISCONNECT.
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(gctx))
	defer stopServing()
	g.Go(func() error {
		return s.Serve(serveCtx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		g.Go(func() error {
			return s.serveAdmin(serveCtx, addr)
		})
	}
	g.Go(func() error {
		defer stopServing()
		err := s.console.Run(gctx, in, s.dispatcher)
		if errors.Is(err, ErrStop) {
			s.stopped.Store(true)
			return nil
		}
		s.release()
		return err
	})
	return g.Wait()
}

// release broadcasts DISCONNECT once on shutdown paths other than `stop`.
func (s *Service) release() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	msg := protocol.NewDisconnect(s.cfg.HubID)
	for _, e := range s.registry.Snapshot() {
		if err := e.Session.Send(msg); err != nil {
			log.Debug().Err(err).Str("remote", e.Session.RemoteAddr).Msg("hub.Service.release disconnect failed")
		}
	}
}

func (s *Service) listen() (net.Listener, error) {
	return net.Listen("tcp", s.cfg.ListenAddr)
}

// Hub accept loop for agent connections on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.ready.Store(false)
		s.closeAllConns()
		_ = ln.Close()
	}()
	s.ready.Store(true)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(conn)
	}
}

// handleConn owns one agent connection from accept to close.
func (s *Service) handleConn(conn net.Conn) {
	defer s.untrackConn(conn)
	sc := session.NewConn(conn, s.cfg.Session)
	sess := newSession(sc, s.cfg.HubID)
	s.registry.Register(sess)

	active := s.sessionsNow.Add(1)
	observability.SetSessionsActive(s.cfg.HubID, int(active))
	log.Info().Str("session", sess.ID).Str("remote", sess.RemoteAddr).Int64("active", active).Msg("hub.session connected")
	defer func() {
		alias, _ := s.registry.Alias(sess)
		s.registry.Remove(sess)
		_ = sess.Close()
		remaining := s.sessionsNow.Add(-1)
		observability.SetSessionsActive(s.cfg.HubID, int(remaining))
		log.Info().
			Str("session", sess.ID).
			Str("alias", alias).
			Str("remote", sess.RemoteAddr).
			Int64("active", remaining).
			Msg("hub.session disconnected")
	}()

	for {
		msg, err := sc.Receive()
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidMessage) {
				log.Warn().Err(err).Str("remote", sess.RemoteAddr).Msg("hub.handleConn skipped invalid frame")
				continue
			}
			if !protocol.IsConnectionClosed(err) {
				log.Warn().Err(err).Str("remote", sess.RemoteAddr).Msg("hub.handleConn receive failed")
			}
			return
		}
		observability.RecordFrame(s.cfg.HubID, "in", msg.Kind.String())
		if done := s.handleMessage(sess, msg); done {
			return
		}
	}
}

// handleMessage applies one inbound message; it reports whether the
// connection is finished.
func (s *Service) handleMessage(sess *Session, msg protocol.Message) bool {
	switch msg.Kind {
	case protocol.KindAlias:
		if err := s.registry.SetAlias(sess, msg.Content); err != nil {
			log.Warn().Err(err).Str("remote", sess.RemoteAddr).Msg("hub.handleConn alias rejected")
		}
		return false
	case protocol.KindDisconnect:
		return true
	case protocol.KindCommandOutput, protocol.KindCommandError, protocol.KindMessage, protocol.KindCommand:
		alias, _ := s.registry.Alias(sess)
		s.sink.Load().Deliver(Entry{Session: sess, Alias: alias}, msg)
		return false
	default:
		log.Warn().Str("kind", msg.Kind.String()).Str("remote", sess.RemoteAddr).Msg("hub.handleConn unknown kind")
		return false
	}
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
