package rcon

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/yourusername/mc-server-panel/internal/config"
)

func TestNewClientFromConfig(t *testing.T) {
	game := config.DefaultGame()
	game.ServerIP = "10.0.0.5"
	game.RconPort = 26000
	game.RconPassword = "secret"
	game.RconTimeout = "2s"

	client := NewClient(game)
	if client.Address != "10.0.0.5:26000" {
		t.Fatalf("unexpected address %s", client.Address)
	}
	if client.Password != "secret" || client.Timeout != 2*time.Second {
		t.Fatalf("unexpected client %+v", client)
	}
}

func TestTimeoutClampedToDeadline(t *testing.T) {
	client := &Client{Timeout: time.Minute}

	if got := client.timeout(context.Background()); got != time.Minute {
		t.Fatalf("expected configured timeout, got %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if got := client.timeout(ctx); got > 200*time.Millisecond {
		t.Fatalf("expected timeout bounded by deadline, got %v", got)
	}
}

func TestDialRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	client := &Client{Address: addr, Password: "secret", Timeout: time.Second}
	if _, err := client.Dial(context.Background()); err == nil {
		t.Fatalf("expected dial error for closed port")
	}
}

func TestDialCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &Client{Address: "127.0.0.1:1", Password: "secret"}
	if _, err := client.Dial(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
