package rcon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/gorcon/rcon"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/server"
)

const defaultTimeout = 5 * time.Second

// Client dials remote console sessions to the game server
type Client struct {
	Address  string
	Password string
	Timeout  time.Duration
}

// NewClient builds a client from the game configuration
func NewClient(game config.GameConfig) *Client {
	return &Client{
		Address:  net.JoinHostPort(game.ServerIP, strconv.Itoa(game.RconPort)),
		Password: game.RconPassword,
		Timeout:  config.Duration(game.RconTimeout, defaultTimeout),
	}
}

// Factory adapts NewClient to the supervisor's remote factory
func Factory(game config.GameConfig) server.DialFunc {
	return NewClient(game).Dial
}

// Dial opens and authenticates one session. Both the dial and every
// request on the session are bounded by the client timeout, shortened to the
// context deadline when that comes first.
func (c *Client) Dial(ctx context.Context) (server.RemoteSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := c.timeout(ctx)

	conn, err := rcon.Dial(c.Address, c.Password,
		rcon.SetDialTimeout(timeout),
		rcon.SetDeadline(timeout),
	)
	if err != nil {
		if errors.Is(err, rcon.ErrAuthFailed) {
			log.Printf("[RCON] Authentication to %s failed; check rcon_password", c.Address)
		}
		return nil, fmt.Errorf("rcon %s: %w", c.Address, err)
	}
	return conn, nil
}

func (c *Client) timeout(ctx context.Context) time.Duration {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	return timeout
}
