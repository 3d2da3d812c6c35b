// Package query reads the game server's UDP status query, answered when
// enable-query is set.
package query

import (
	"context"
	"fmt"
	"strconv"
	"time"

	mcquery "github.com/mcstatus-io/mcutil/v4/query"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/server"
)

const defaultTimeout = 3 * time.Second

// FullStat is the decoded answer of a full stat request
type FullStat struct {
	Values  map[string]string
	Players []string
	Latency time.Duration
}

// Client queries one server
type Client struct {
	Host    string
	Port    uint16
	Timeout time.Duration
}

// NewClient builds a client from the game configuration
func NewClient(game config.GameConfig) *Client {
	host := game.ServerIP
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return &Client{
		Host:    host,
		Port:    uint16(game.QueryPort),
		Timeout: config.Duration(game.QueryTimeout, defaultTimeout),
	}
}

// Factory adapts NewClient to the supervisor's probe factory
func Factory(game config.GameConfig) server.StatusProbe {
	return NewClient(game)
}

// Status returns counts, latency and the player list from one full stat
func (c *Client) Status(ctx context.Context) (*server.ProbeStatus, error) {
	stat, err := c.FullStat(ctx)
	if err != nil {
		return nil, err
	}

	online, _ := strconv.Atoi(stat.Values["numplayers"])
	maxPlayers, _ := strconv.Atoi(stat.Values["maxplayers"])
	return &server.ProbeStatus{
		Online:  online,
		Max:     maxPlayers,
		Latency: stat.Latency,
		MOTD:    stat.Values["hostname"],
		Version: stat.Values["version"],
		Players: stat.Players,
	}, nil
}

// Players returns the names of connected players
func (c *Client) Players(ctx context.Context) ([]string, error) {
	stat, err := c.FullStat(ctx)
	if err != nil {
		return nil, err
	}
	return stat.Players, nil
}

type fullResult struct {
	stat *FullStat
	err  error
}

// FullStat performs a handshake followed by a full stat request
func (c *Client) FullStat(ctx context.Context) (*FullStat, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan fullResult, 1)
	go func() {
		started := time.Now()
		resp, err := mcquery.Full(ctx, c.Host, c.Port)
		if err != nil {
			done <- fullResult{err: err}
			return
		}
		players := make([]string, 0, len(resp.Players))
		players = append(players, resp.Players...)
		done <- fullResult{stat: &FullStat{
			Values:  resp.Data,
			Players: players,
			Latency: time.Since(started),
		}}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("query %s:%d: %w", c.Host, c.Port, res.err)
		}
		return res.stat, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("query %s:%d: %w", c.Host, c.Port, ctx.Err())
	}
}
