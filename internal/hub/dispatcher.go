package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/relayctl/internal/observability"
	"github.com/danmuck/relayctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	// ErrStop is returned after `stop` has broadcast DISCONNECT.
	ErrStop  = errors.New("hub: stop requested")
	ErrUsage = errors.New("hub: usage")
)

// Operator directives. Any other line is broadcast as MESSAGE.
const (
	DirectiveStop       = "stop"
	DirectiveDisconnect = "disconnect"
	DirectiveList       = "list"
	DirectiveCommandAll = "commandall"
	DirectiveCommand    = "command"
	DirectiveMessage    = "message"
)

// Result summarizes one dispatched line.
type Result struct {
	Directive string
	Sent      int
	Failed    int
}

// Dispatcher turns operator lines into outbound messages via the Registry.
type Dispatcher struct {
	author   string
	registry *Registry
	console  *Console
}

func NewDispatcher(author string, registry *Registry, console *Console) *Dispatcher {
	return &Dispatcher{author: author, registry: registry, console: console}
}

// Dispatch executes one operator line. A blank line does nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (Result, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var (
		res Result
		err error
	)
	switch tokens[0] {
	case DirectiveStop:
		res = d.broadcast(DirectiveStop, protocol.NewDisconnect(d.author))
		err = ErrStop
	case DirectiveDisconnect:
		if len(tokens) < 2 {
			err = fmt.Errorf("%w: disconnect <alias>", ErrUsage)
			break
		}
		res, err = d.unicast(DirectiveDisconnect, tokens[1], protocol.NewDisconnect(d.author))
	case DirectiveList:
		res = d.list()
	case DirectiveCommandAll:
		if len(tokens) < 2 {
			err = fmt.Errorf("%w: commandall <cmd...>", ErrUsage)
			break
		}
		res = d.broadcast(DirectiveCommandAll, protocol.NewCommand(d.author, strings.Join(tokens[1:], " ")))
	case DirectiveCommand:
		if len(tokens) < 3 {
			err = fmt.Errorf("%w: command <alias> <cmd...>", ErrUsage)
			break
		}
		res, err = d.unicast(DirectiveCommand, tokens[1], protocol.NewCommand(d.author, strings.Join(tokens[2:], " ")))
	default:
		res = d.broadcast(DirectiveMessage, protocol.NewMessage(d.author, line))
	}

	if res.Directive == "" {
		res.Directive = tokens[0]
	}
	observability.RecordDispatch(d.author, res.Directive, dispatchOutcome(res, err))
	return res, err
}

func (d *Dispatcher) broadcast(directive string, msg protocol.Message) Result {
	res := Result{Directive: directive}
	for _, e := range d.registry.Snapshot() {
		d.send(&res, e, msg)
	}
	return res
}

func (d *Dispatcher) unicast(directive, alias string, msg protocol.Message) (Result, error) {
	res := Result{Directive: directive}
	s, err := d.registry.Lookup(alias)
	if err != nil {
		return res, err
	}
	d.send(&res, Entry{Session: s, Alias: alias}, msg)
	return res, nil
}

func (d *Dispatcher) send(res *Result, e Entry, msg protocol.Message) {
	if err := e.Session.Send(msg); err != nil {
		res.Failed++
		log.Warn().
			Err(err).
			Str("alias", e.Alias).
			Str("remote", e.Session.RemoteAddr).
			Str("kind", msg.Kind.String()).
			Msg("hub.Dispatcher send failed")
		return
	}
	res.Sent++
}

func (d *Dispatcher) list() Result {
	entries := d.registry.Snapshot()
	var b strings.Builder
	for _, e := range entries {
		alias := e.Alias
		if alias == "" {
			alias = "-"
		}
		fmt.Fprintf(&b, "%s\t%s\n", alias, e.Session.RemoteAddr)
	}
	d.console.Printf("%s", b.String())
	return Result{Directive: DirectiveList}
}

func dispatchOutcome(res Result, err error) string {
	switch {
	case errors.Is(err, ErrStop):
		return "ok"
	case errors.Is(err, ErrUnknownAlias):
		return "unknown_alias"
	case errors.Is(err, ErrUsage):
		return "usage"
	case err != nil:
		return "error"
	case res.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}
