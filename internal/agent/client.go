package agent

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/danmuck/relayctl/internal/tools"
	"github.com/rs/zerolog/log"
)

var ErrHubAddressRequired = errors.New("agent: hub address required")

type Config struct {
	HubAddress string
	Session    session.Config
	Executor   ExecutorConfig

	// Alias overrides the identity derived from the local user.
	Alias string

	// Output receives messages addressed to the agent operator. Defaults to os.Stdout.
	Output io.Writer

	// MetricsListenAddr serves /metrics while connected. Empty disables it.
	MetricsListenAddr string
}

func DefaultConfig() Config {
	return Config{
		HubAddress: "127.0.0.1:5050",
		Session:    session.DefaultConfig(),
		Executor:   DefaultExecutorConfig(),
	}
}

// Client is one agent process's connection to the hub.
type Client struct {
	cfg    Config
	runner tools.CommandRunner
	outMu  sync.Mutex
}

func NewClient(cfg Config, runner tools.CommandRunner) (*Client, error) {
	if strings.TrimSpace(cfg.HubAddress) == "" {
		return nil, ErrHubAddressRequired
	}
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	cfg.Session = cfg.Session.WithDefaults()
	cfg.Executor = cfg.Executor.WithDefaults()
	return &Client{cfg: cfg, runner: runner}, nil
}

// Agent runtime entrypoint that blocks until the hub disconnects or a signal arrives.
func (c *Client) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return c.RunContext(ctx)
}

// RunContext connects, identifies and serves hub messages until DISCONNECT,
// connection loss, or ctx cancellation. Only setup failures are returned.
func (c *Client) RunContext(ctx context.Context) error {
	alias, err := c.alias(ctx)
	if err != nil {
		return err
	}
	if addr := strings.TrimSpace(c.cfg.MetricsListenAddr); addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		_, wait, err := serveMetrics(metricsCtx, addr, alias)
		if err != nil {
			stopMetrics()
			return fmt.Errorf("agent: metrics listener: %w", err)
		}
		defer wait()
		defer stopMetrics()
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	sc := session.NewConn(conn, c.cfg.Session)

	// The releaser halts the executor before writing the final DISCONNECT,
	// so no command reply can follow it.
	execCtx, cancelExec := context.WithCancel(ctx)
	exec := NewExecutor(execCtx, alias, c.runner, sc, c.cfg.Executor)
	rel := newReleaser(sc, alias, exec.Halt)
	defer func() {
		rel.Release()
		cancelExec()
		_ = exec.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rel.Release()
		case <-done:
		}
	}()

	if err := c.send(sc, alias, protocol.NewAlias(alias, alias)); err != nil {
		if protocol.IsConnectionClosed(err) {
			rel.markUnusable()
		}
		return fmt.Errorf("agent: announce alias: %w", err)
	}
	log.Info().Str("alias", alias).Str("hub", c.cfg.HubAddress).Msg("agent.Client connected")

	for {
		msg, err := sc.Receive()
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidMessage) {
				log.Warn().Err(err).Msg("agent.Client skipped invalid frame")
				continue
			}
			rel.markUnusable()
			if ctx.Err() != nil {
				log.Info().Msg("agent.Client shutting down")
				return nil
			}
			log.Info().Err(err).Msg("agent.Client hub connection closed")
			return nil
		}
		observability.RecordFrame(alias, "in", msg.Kind.String())

		switch msg.Kind {
		case protocol.KindDisconnect:
			exec.Halt()
			if err := c.send(sc, alias, protocol.NewDisconnect(alias)); err != nil {
				log.Debug().Err(err).Msg("agent.Client disconnect reply failed")
			}
			rel.markUnusable()
			log.Info().Str("from", msg.Author).Msg("agent.Client disconnected by hub")
			return nil
		case protocol.KindCommand:
			exec.Submit(msg.Content)
		case protocol.KindAlias, protocol.KindCommandOutput, protocol.KindCommandError, protocol.KindMessage:
			c.print(msg)
		default:
			log.Warn().Str("kind", msg.Kind.String()).Msg("agent.Client unknown kind")
		}
	}
}

func (c *Client) alias(ctx context.Context) (string, error) {
	if alias := normalizeAlias(c.cfg.Alias); alias != "" {
		return alias, nil
	}
	return Identity(ctx, c.runner)
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.HubAddress)
	if err != nil {
		log.Warn().Err(err).Str("addr", c.cfg.HubAddress).Msg("agent.Client dial failed")
		return nil, err
	}
	return conn, nil
}

func (c *Client) send(sc *session.Conn, alias string, msg protocol.Message) error {
	if err := sc.Send(msg); err != nil {
		return err
	}
	observability.RecordFrame(alias, "out", msg.Kind.String())
	return nil
}

func (c *Client) print(msg protocol.Message) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	switch msg.Kind {
	case protocol.KindMessage:
		fmt.Fprintf(c.cfg.Output, "[%s] %s\n", msg.Author, msg.Content)
	default:
		fmt.Fprintf(c.cfg.Output, "[%s] %s %q\n", msg.Author, msg.Kind, msg.Content)
	}
}

// releaser closes the connection exactly once, announcing DISCONNECT first
// while the connection can still carry it.
type releaser struct {
	conn   *session.Conn
	author string
	halt   func()
	usable atomic.Bool
	once   sync.Once
}

func newReleaser(conn *session.Conn, author string, halt func()) *releaser {
	r := &releaser{conn: conn, author: author, halt: halt}
	r.usable.Store(true)
	return r
}

func (r *releaser) markUnusable() {
	r.usable.Store(false)
}

func (r *releaser) Release() {
	r.once.Do(func() {
		// Bounds any reply still blocked in a write while halt waits for it.
		_ = r.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if r.halt != nil {
			r.halt()
		}
		if r.usable.Load() {
			if err := r.conn.Send(protocol.NewDisconnect(r.author)); err != nil {
				log.Debug().Err(err).Msg("agent.releaser disconnect failed")
			}
		}
		_ = r.conn.Close()
	})
}
