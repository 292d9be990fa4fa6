package hub

import (
	"sync/atomic"
	"time"

	"github.com/danmuck/relayctl/internal/observability"
	"github.com/danmuck/relayctl/internal/protocol"
	"github.com/danmuck/relayctl/internal/protocol/session"
	"github.com/google/uuid"
)

// ConnState is the per-connection handler state.
type ConnState uint32

const (
	StateAccepted ConnState = iota
	StateIdentified
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session binds one live agent connection. Its alias lives in the Registry.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn  *session.Conn
	node  string
	state atomic.Uint32
}

func newSession(conn *session.Conn, node string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		RemoteAddr:  conn.RemoteAddr(),
		ConnectedAt: time.Now(),
		conn:        conn,
		node:        node,
	}
}

// Send frames msg to the agent.
func (s *Session) Send(msg protocol.Message) error {
	if err := s.conn.Send(msg); err != nil {
		return err
	}
	observability.RecordFrame(s.node, "out", msg.Kind.String())
	return nil
}

func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

func (s *Session) setState(state ConnState) {
	s.state.Store(uint32(state))
}

// Close marks the session closed and closes its connection.
func (s *Session) Close() error {
	s.setState(StateClosed)
	return s.conn.Close()
}
