// Package connector manages the dashboard's links to the social platforms.
// Connections are simulated: there is no real OAuth handshake, only
// realistic latency and the occasional transient failure so downstream
// code handles both outcomes.
package connector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"inboxpilot/internal/logging"
	"inboxpilot/internal/triage"
)

// Status of one platform link.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Connection is the state of one platform link.
type Connection struct {
	Platform    triage.Platform
	Status      Status
	ConnectedAt time.Time
}

// Registry tracks the connection state of every supported platform.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[triage.Platform]*Connection

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
	randF func() float64
}

// NewRegistry creates a registry with all platforms disconnected.
func NewRegistry() *Registry {
	r := &Registry{
		conns: make(map[triage.Platform]*Connection),
		sleep: sleepCtx,
		randF: rand.Float64,
	}
	for _, p := range []triage.Platform{triage.PlatformInstagram, triage.PlatformFacebook, triage.PlatformLinkedIn} {
		r.conns[p] = &Connection{Platform: p, Status: StatusDisconnected}
	}
	return r
}

// Connect establishes the link to a platform. The handshake takes about a
// second; Instagram is intermittently busy and fails roughly one time in
// five, leaving the link disconnected.
func (r *Registry) Connect(ctx context.Context, platform triage.Platform) error {
	conn, err := r.get(platform)
	if err != nil {
		return err
	}

	r.setStatus(platform, StatusConnecting)
	logging.Connector("Connecting to %s...", platform)

	if err := r.sleep(ctx, 1200*time.Millisecond); err != nil {
		r.setStatus(platform, StatusDisconnected)
		return err
	}

	if platform == triage.PlatformInstagram && r.randF() < 0.2 {
		r.setStatus(platform, StatusDisconnected)
		logging.Connector("Connection to %s failed: platform busy", platform)
		return fmt.Errorf("%s is busy, try again later", platform)
	}

	r.mu.Lock()
	conn.Status = StatusConnected
	conn.ConnectedAt = time.Now()
	r.mu.Unlock()

	logging.Connector("Connected to %s", platform)
	return nil
}

// Disconnect drops the link. Disconnecting an already-disconnected
// platform is a no-op.
func (r *Registry) Disconnect(ctx context.Context, platform triage.Platform) error {
	if _, err := r.get(platform); err != nil {
		return err
	}

	if err := r.sleep(ctx, 400*time.Millisecond); err != nil {
		return err
	}

	r.setStatus(platform, StatusDisconnected)
	logging.Connector("Disconnected from %s", platform)
	return nil
}

// StatusOf reports the current state of one platform.
func (r *Registry) StatusOf(platform triage.Platform) (Status, error) {
	conn, err := r.get(platform)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return conn.Status, nil
}

// Connections returns a snapshot of every platform link.
func (r *Registry) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.conns))
	for _, p := range []triage.Platform{triage.PlatformInstagram, triage.PlatformFacebook, triage.PlatformLinkedIn} {
		out = append(out, *r.conns[p])
	}
	return out
}

func (r *Registry) get(platform triage.Platform) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[platform]
	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", platform)
	}
	return conn, nil
}

func (r *Registry) setStatus(platform triage.Platform, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[platform]; ok {
		conn.Status = status
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
