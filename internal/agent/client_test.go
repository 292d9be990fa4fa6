package agent

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/relayctl/internal/protocol"
	"github.com/danmuck/relayctl/internal/protocol/session"
	"github.com/danmuck/relayctl/internal/testutil/testlog"
	"github.com/danmuck/relayctl/internal/tools"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeHub accepts one agent and exposes its framed connection.
func fakeHub(t *testing.T) (string, <-chan *session.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan *session.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- session.NewConn(conn, session.Config{ReadTimeout: 3 * time.Second})
	}()
	return ln.Addr().String(), accepted
}

func startClient(t *testing.T, ctx context.Context, addr string, runner tools.CommandRunner, out *lockedBuffer) <-chan error {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HubAddress = addr
	cfg.Alias = "agent1"
	cfg.Output = out
	client, err := NewClient(cfg, runner)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- client.RunContext(ctx)
	}()
	return done
}

func acceptAgent(t *testing.T, accepted <-chan *session.Conn) *session.Conn {
	t.Helper()
	select {
	case sc := <-accepted:
		t.Cleanup(func() { _ = sc.Close() })
		msg, err := sc.Receive()
		if err != nil {
			t.Fatalf("receive alias: %v", err)
		}
		if msg.Kind != protocol.KindAlias || msg.Content != "agent1" || msg.Author != "agent1" {
			t.Fatalf("expected ALIAS first, got %+v", msg)
		}
		return sc
	case <-time.After(3 * time.Second):
		t.Fatalf("agent did not connect")
	}
	return nil
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("agent did not exit")
	}
}

func echoRunner() tools.CommandRunner {
	return tools.RunFunc(func(_ context.Context, name string, args ...string) (tools.Result, error) {
		if name != "echo" {
			return tools.Result{ExitCode: 127}, errors.New("not found")
		}
		return tools.Result{Stdout: []byte(strings.Join(args, " ") + "\n")}, nil
	})
}

func TestClientCommandOutputAndGracefulDisconnect(t *testing.T) {
	testlog.Start(t)

	addr, accepted := fakeHub(t)
	done := startClient(t, context.Background(), addr, echoRunner(), &lockedBuffer{})
	hub := acceptAgent(t, accepted)

	if err := hub.Send(protocol.NewCommand("hub", "echo hi")); err != nil {
		t.Fatalf("send command: %v", err)
	}
	msg, err := hub.Receive()
	if err != nil {
		t.Fatalf("receive output: %v", err)
	}
	if msg.Kind != protocol.KindCommandOutput || msg.Content != "hi\n" || msg.Author != "agent1" {
		t.Fatalf("unexpected reply: %+v", msg)
	}

	if err := hub.Send(protocol.NewDisconnect("hub")); err != nil {
		t.Fatalf("send disconnect: %v", err)
	}
	msg, err = hub.Receive()
	if err != nil || msg.Kind != protocol.KindDisconnect {
		t.Fatalf("expected DISCONNECT reply, got %+v err=%v", msg, err)
	}
	waitDone(t, done)

	if _, err := hub.Receive(); !protocol.IsConnectionClosed(err) {
		t.Fatalf("expected closed connection after graceful exchange, got %v", err)
	}
}

func TestClientFailedCommandRepliesCommandError(t *testing.T) {
	testlog.Start(t)

	addr, accepted := fakeHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startClient(t, ctx, addr, echoRunner(), &lockedBuffer{})
	hub := acceptAgent(t, accepted)

	if err := hub.Send(protocol.NewCommand("hub", "nonexistent_cmd_xyz")); err != nil {
		t.Fatalf("send command: %v", err)
	}
	msg, err := hub.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Kind != protocol.KindCommandError || msg.Content != "" {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	cancel()
	waitDone(t, done)
}

func TestClientPrintsHubMessages(t *testing.T) {
	testlog.Start(t)

	addr, accepted := fakeHub(t)
	out := &lockedBuffer{}
	done := startClient(t, context.Background(), addr, echoRunner(), out)
	hub := acceptAgent(t, accepted)

	_ = hub.Send(protocol.NewMessage("hub", "hello agents"))
	_ = hub.Send(protocol.NewDisconnect("hub"))
	if msg, err := hub.Receive(); err != nil || msg.Kind != protocol.KindDisconnect {
		t.Fatalf("expected DISCONNECT reply, got %+v err=%v", msg, err)
	}
	waitDone(t, done)
	if got := out.String(); !strings.Contains(got, "[hub] hello agents") {
		t.Fatalf("message not printed: %q", got)
	}
}

func TestClientCancelSendsDisconnect(t *testing.T) {
	testlog.Start(t)

	addr, accepted := fakeHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := startClient(t, ctx, addr, echoRunner(), &lockedBuffer{})
	hub := acceptAgent(t, accepted)

	cancel()
	msg, err := hub.Receive()
	if err != nil || msg.Kind != protocol.KindDisconnect {
		t.Fatalf("expected best-effort DISCONNECT, got %+v err=%v", msg, err)
	}
	waitDone(t, done)
	if _, err := hub.Receive(); !protocol.IsConnectionClosed(err) {
		t.Fatalf("expected exactly one DISCONNECT then close, got %v", err)
	}
}

func TestClientHubCloseEndsLoop(t *testing.T) {
	testlog.Start(t)

	addr, accepted := fakeHub(t)
	done := startClient(t, context.Background(), addr, echoRunner(), &lockedBuffer{})
	hub := acceptAgent(t, accepted)

	_ = hub.Close()
	waitDone(t, done)
}

func TestClientInvalidFrameIsSkipped(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	done := startClient(t, context.Background(), ln.Addr().String(), echoRunner(), &lockedBuffer{})

	raw, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer raw.Close()
	hub := session.NewConn(raw, session.Config{ReadTimeout: 3 * time.Second})
	if msg, err := hub.Receive(); err != nil || msg.Kind != protocol.KindAlias {
		t.Fatalf("expected alias, got %+v err=%v", msg, err)
	}

	// A complete frame whose payload is not a message.
	if _, err := raw.Write([]byte("               3abc")); err != nil {
		t.Fatalf("write garbage frame: %v", err)
	}
	if err := hub.Send(protocol.NewDisconnect("hub")); err != nil {
		t.Fatalf("send disconnect: %v", err)
	}
	if msg, err := hub.Receive(); err != nil || msg.Kind != protocol.KindDisconnect {
		t.Fatalf("expected DISCONNECT reply after invalid frame, got %+v err=%v", msg, err)
	}
	waitDone(t, done)
}

func TestNewClientRequiresAddress(t *testing.T) {
	testlog.Start(t)

	if _, err := NewClient(Config{}, nil); !errors.Is(err, ErrHubAddressRequired) {
		t.Fatalf("expected ErrHubAddressRequired, got %v", err)
	}
}

func TestClientDialFailure(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := DefaultConfig()
	cfg.HubAddress = addr
	cfg.Alias = "agent1"
	client, err := NewClient(cfg, echoRunner())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.RunContext(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
}

func blockingRunner(started chan<- string) tools.CommandRunner {
	return tools.RunFunc(func(ctx context.Context, name string, _ ...string) (tools.Result, error) {
		started <- name
		<-ctx.Done()
		return tools.Result{ExitCode: -1}, ctx.Err()
	})
}

func TestClientNothingFollowsDisconnectReply(t *testing.T) {
	testlog.Start(t)

	addr, accepted := fakeHub(t)
	started := make(chan string, 1)
	done := startClient(t, context.Background(), addr, blockingRunner(started), &lockedBuffer{})
	hub := acceptAgent(t, accepted)

	if err := hub.Send(protocol.NewCommand("hub", "sleep 100")); err != nil {
		t.Fatalf("send command: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("command did not start")
	}
	if err := hub.Send(protocol.NewDisconnect("hub")); err != nil {
		t.Fatalf("send disconnect: %v", err)
	}
	msg, err := hub.Receive()
	if err != nil || msg.Kind != protocol.KindDisconnect {
		t.Fatalf("expected DISCONNECT reply, got %+v err=%v", msg, err)
	}
	waitDone(t, done)

	if msg, err := hub.Receive(); !protocol.IsConnectionClosed(err) {
		t.Fatalf("expected close after DISCONNECT reply, got %+v err=%v", msg, err)
	}
}

func TestClientCancelWithRunningCommandSendsOnlyDisconnect(t *testing.T) {
	testlog.Start(t)

	addr, accepted := fakeHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan string, 1)
	done := startClient(t, ctx, addr, blockingRunner(started), &lockedBuffer{})
	hub := acceptAgent(t, accepted)

	if err := hub.Send(protocol.NewCommand("hub", "sleep 100")); err != nil {
		t.Fatalf("send command: %v", err)
	}
	<-started
	cancel()
	msg, err := hub.Receive()
	if err != nil || msg.Kind != protocol.KindDisconnect {
		t.Fatalf("expected DISCONNECT, got %+v err=%v", msg, err)
	}
	waitDone(t, done)
	if msg, err := hub.Receive(); !protocol.IsConnectionClosed(err) {
		t.Fatalf("expected close after DISCONNECT, got %+v err=%v", msg, err)
	}
}

func TestClientMetricsListenerBindFailure(t *testing.T) {
	testlog.Start(t)

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	cfg := DefaultConfig()
	cfg.HubAddress = "127.0.0.1:1"
	cfg.Alias = "agent1"
	cfg.MetricsListenAddr = busy.Addr().String()
	client, err := NewClient(cfg, echoRunner())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.RunContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "metrics listener") {
		t.Fatalf("expected metrics listener error, got %v", err)
	}
}
