package gate

import (
	"context"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Prober tracks reachability of the remote host by dialing it
// periodically in the background. IsOnline only reads the last result.
type Prober struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	logger   *log.Logger

	online atomic.Bool

	mu        sync.Mutex
	listeners []func(bool)
}

// NewProber returns a prober for addr (host:port). It reports offline
// until the first probe succeeds.
func NewProber(addr string, interval time.Duration, logger *log.Logger) *Prober {
	if logger == nil {
		logger = log.New(os.Stderr, "[probe] ", log.LstdFlags)
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	d := &net.Dialer{}
	return &Prober{
		addr:     addr,
		interval: interval,
		timeout:  3 * time.Second,
		dial:     d.DialContext,
		logger:   logger,
	}
}

// IsOnline implements Connectivity.
func (p *Prober) IsOnline() bool {
	return p.online.Load()
}

// OnChange registers fn to be called when reachability flips.
func (p *Prober) OnChange(fn func(online bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Probe dials once and records the result.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.addr)
	online := err == nil
	if conn != nil {
		_ = conn.Close()
	}

	if prev := p.online.Swap(online); prev != online {
		if online {
			p.logger.Printf("Remote %s reachable", p.addr)
		} else {
			p.logger.Printf("Remote %s unreachable: %v", p.addr, err)
		}
		p.mu.Lock()
		listeners := append([]func(bool){}, p.listeners...)
		p.mu.Unlock()
		for _, fn := range listeners {
			fn(online)
		}
	}
	return online
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
