package hub

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/danmuck/relayctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Sink receives agent messages that are meant for the operator.
type Sink interface {
	Deliver(from Entry, msg protocol.Message)
}

// Console is the operator-facing writer. Writes from connection handlers
// and the dispatcher never interleave within a line.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Deliver renders one inbound message.
func (c *Console) Deliver(from Entry, msg protocol.Message) {
	name := from.Alias
	if name == "" {
		name = from.Session.RemoteAddr
	}
	switch msg.Kind {
	case protocol.KindCommandOutput:
		c.Printf("[%s]\n%s", name, withNewline(msg.Content))
	case protocol.KindCommandError:
		c.Printf("[%s] command failed\n", name)
	case protocol.KindMessage:
		c.Printf("[%s] %s", name, withNewline(msg.Content))
	case protocol.KindAlias, protocol.KindCommand, protocol.KindDisconnect:
		c.Printf("[%s] %s author=%q content=%q\n", name, msg.Kind, msg.Author, msg.Content)
	default:
		c.Printf("[%s] %s\n", name, msg.Kind)
	}
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// Run feeds operator lines from in to the dispatcher until stop, ctx
// cancellation, or end of input. End of input leaves the hub serving until
// ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader, d *Dispatcher) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				log.Warn().Err(err).Msg("hub.Console input failed")
			} else {
				log.Info().Msg("hub.Console input closed; serving until shutdown")
			}
			<-ctx.Done()
			return nil
		case line := <-lines:
			res, err := d.Dispatch(ctx, line)
			switch {
			case errors.Is(err, ErrStop):
				c.Printf("stopping: disconnect sent=%d failed=%d\n", res.Sent, res.Failed)
				return ErrStop
			case err != nil:
				c.Printf("error: %v\n", err)
			case res.Failed > 0:
				c.Printf("%s: sent=%d failed=%d\n", res.Directive, res.Sent, res.Failed)
			}
		}
	}
}
