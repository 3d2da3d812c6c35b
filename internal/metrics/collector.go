package metrics

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/yourusername/mc-server-panel/internal/server"
)

// StatusSource is the part of the supervisor the collector samples
type StatusSource interface {
	Status(ctx context.Context) (*server.StatusReport, error)
}

// Collector periodically queries server status and publishes it as gauges
type Collector struct {
	source   StatusSource
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector. Interval values <= 0 default to 30s.
func NewCollector(source StatusSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		timeout:  10 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	report, err := c.source.Status(ctx)
	switch {
	case errors.Is(err, server.ErrBusy):
		// a lifecycle operation holds the lock; try again next tick
		return
	case errors.Is(err, server.ErrUnresponsive):
		probeFailures.Inc()
	case err != nil:
		log.Printf("[Metrics] Status collection failed: %v", err)
		return
	}
	if report == nil {
		return
	}

	SetState(report.State)
	serverPlayers.Set(float64(report.Players))
	serverLatency.Set(report.LatencyMS / 1000)
}
