package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/relayctl/internal/observability"
	"github.com/danmuck/relayctl/internal/protocol"
	"github.com/danmuck/relayctl/internal/protocol/session"
	"github.com/danmuck/relayctl/internal/tools"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCommandFailed = errors.New("agent: command failed")
	ErrEmptyCommand  = errors.New("agent: empty command")
)

// Sender is the outbound half of a connection.
type Sender interface {
	Send(msg protocol.Message) error
}

type ExecutorConfig struct {
	MaxConcurrent int
	QueueDepth    int

	// CommandTimeout bounds one command; zero means no limit.
	CommandTimeout time.Duration
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent: 4,
		QueueDepth:    64,
	}
}

func (c ExecutorConfig) WithDefaults() ExecutorConfig {
	def := DefaultExecutorConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.CommandTimeout < 0 {
		c.CommandTimeout = 0
	}
	return c
}

// Executor runs COMMAND payloads on a fixed pool of workers and replies
// with COMMAND_OUTPUT or COMMAND_ERROR.
type Executor struct {
	author string
	runner tools.CommandRunner
	out    Sender
	cfg    ExecutorConfig

	mu     sync.RWMutex
	closed bool
	queue  chan string
	group  *errgroup.Group

	// sendMu is held shared for every reply; Halt takes it exclusively.
	sendMu sync.RWMutex
	halted bool
}

// NewExecutor starts the worker pool. Cancelling ctx cancels running
// commands and drops queued ones.
func NewExecutor(ctx context.Context, author string, runner tools.CommandRunner, out Sender, cfg ExecutorConfig) *Executor {
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	cfg = cfg.WithDefaults()
	e := &Executor{
		author: author,
		runner: runner,
		out:    out,
		cfg:    cfg,
		queue:  make(chan string, cfg.QueueDepth),
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.MaxConcurrent; i++ {
		g.Go(func() error {
			for command := range e.queue {
				if gctx.Err() != nil {
					continue
				}
				e.execute(gctx, command)
			}
			return nil
		})
	}
	e.group = g
	return e
}

// Submit queues command without blocking. A full or closed executor
// rejects the command and replies COMMAND_ERROR.
func (e *Executor) Submit(command string) bool {
	e.mu.RLock()
	accepted := false
	if !e.closed {
		select {
		case e.queue <- command:
			accepted = true
		default:
		}
	}
	e.mu.RUnlock()
	if accepted {
		return true
	}

	log.Warn().
		Str("command", command).
		Int("queue_depth", e.cfg.QueueDepth).
		Msg("agent.Executor rejected command")
	observability.RecordCommand(e.author, "rejected", 0)
	e.reply(protocol.NewCommandError(e.author))
	return false
}

// Halt stops all further replies. Once it returns no reply is in flight,
// so the caller owns the connection's final frames.
func (e *Executor) Halt() {
	e.sendMu.Lock()
	e.halted = true
	e.sendMu.Unlock()
}

// Close stops accepting commands and waits for workers to drain the queue.
func (e *Executor) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	return e.group.Wait()
}

func (e *Executor) execute(ctx context.Context, command string) {
	start := time.Now()
	res, err := e.run(ctx, command)
	if err != nil && ctx.Err() != nil {
		// Cancelled by shutdown, not by CommandTimeout.
		log.Debug().Err(err).Str("command", command).Msg("agent.Executor command cancelled")
		observability.RecordCommand(e.author, "cancelled", time.Since(start))
		return
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("command", command).
			Int32("exit_code", res.ExitCode).
			Str("stderr", strings.TrimSpace(string(res.Stderr))).
			Msg("agent.Executor command failed")
		observability.RecordCommand(e.author, "failed", time.Since(start))
		e.reply(protocol.NewCommandError(e.author))
		return
	}
	observability.RecordCommand(e.author, "ok", time.Since(start))
	e.reply(protocol.NewCommandOutput(e.author, strings.ToValidUTF8(string(res.Stdout), "\uFFFD")))
}

func (e *Executor) run(ctx context.Context, command string) (tools.Result, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return tools.Result{}, ErrEmptyCommand
	}
	if e.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CommandTimeout)
		defer cancel()
	}
	res, err := e.runner.Run(ctx, fields[0], fields[1:]...)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrCommandFailed, fields[0], err)
	}
	return res, nil
}

func (e *Executor) reply(msg protocol.Message) {
	e.sendMu.RLock()
	defer e.sendMu.RUnlock()
	if e.halted {
		log.Debug().Str("kind", msg.Kind.String()).Msg("agent.Executor reply suppressed after halt")
		return
	}
	err := e.out.Send(msg)
	if err == nil {
		observability.RecordFrame(e.author, "out", msg.Kind.String())
		return
	}
	if isClosed(err) || msg.Kind != protocol.KindCommandOutput {
		log.Debug().Err(err).Str("kind", msg.Kind.String()).Msg("agent.Executor reply dropped")
		return
	}

	// The output could not be framed (for example it exceeds the payload
	// limit); the hub still gets an answer.
	log.Warn().
		Err(err).
		Int("content_bytes", len(msg.Content)).
		Msg("agent.Executor output undeliverable; replying COMMAND_ERROR")
	observability.RecordCommand(e.author, "undeliverable", 0)
	fallback := protocol.NewCommandError(e.author)
	if err := e.out.Send(fallback); err != nil {
		log.Debug().Err(err).Msg("agent.Executor reply dropped")
		return
	}
	observability.RecordFrame(e.author, "out", fallback.Kind.String())
}

func isClosed(err error) bool {
	return protocol.IsConnectionClosed(err) || errors.Is(err, session.ErrSessionClosed)
}
