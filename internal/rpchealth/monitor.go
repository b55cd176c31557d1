// Package rpchealth tracks which of several JSON-RPC endpoints is reachable.
// A Monitor races all endpoints on every check and keeps the fastest healthy
// one as the active endpoint.
package rpchealth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Static errors for the monitor.
var (
	// ErrNoEndpoints is returned when the monitor is configured without endpoints.
	ErrNoEndpoints = errors.New("rpchealth: at least one endpoint is required")
	// ErrAlreadyStarted is returned when Start is called on a running monitor.
	ErrAlreadyStarted = errors.New("rpchealth: monitor already started")
	// ErrAllEndpointsFailed is returned when no endpoint passed a check.
	ErrAllEndpointsFailed = errors.New("rpchealth: all endpoints failed")
)

// Defaults applied by NewMonitor.
const (
	DefaultCheckInterval    = 30 * time.Second
	DefaultFailureThreshold = 3
	DefaultTimeout          = 5 * time.Second
)

// Config configures a Monitor.
type Config struct {
	Endpoints        []string
	CheckInterval    time.Duration
	FailureThreshold int
	Timeout          time.Duration
}

// Status is a point-in-time view of the connection.
type Status struct {
	Connected           bool          `json:"connected"`
	ActiveEndpoint      string        `json:"active_endpoint,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastCheck           time.Time     `json:"last_check,omitempty"`
	LastLatency         time.Duration `json:"last_latency_ns,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	Endpoints           []string      `json:"endpoints"`
}

// Monitor periodically checks the configured endpoints.
type Monitor struct {
	cfg     Config
	checker Checker
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	status Status

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock sets the time source used for timestamps and latency.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor creates a Monitor. Zero config values take the package defaults.
func NewMonitor(cfg Config, checker Checker, logger *slog.Logger, opts ...MonitorOption) (*Monitor, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	endpoints := append([]string(nil), cfg.Endpoints...)
	cfg.Endpoints = endpoints

	m := &Monitor{
		cfg:     cfg,
		checker: checker,
		logger:  logger,
		now:     time.Now,
		status:  Status{Endpoints: endpoints},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Status returns a snapshot of the current state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.status
	s.Endpoints = append([]string(nil), m.status.Endpoints...)
	return s
}

// ActiveEndpoint returns the last endpoint that passed a check, or "".
func (m *Monitor) ActiveEndpoint() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.ActiveEndpoint
}

type checkResult struct {
	endpoint string
	err      error
}

// Check races every endpoint and records the outcome. The first healthy
// endpoint to answer wins; the rest are cancelled.
func (m *Monitor) Check(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := m.now()
	results := make(chan checkResult, len(m.cfg.Endpoints))
	for _, ep := range m.cfg.Endpoints {
		go func(endpoint string) {
			results <- checkResult{endpoint: endpoint, err: m.checker.Check(ctx, endpoint)}
		}(ep)
	}

	var errs []error
	winner := ""
	for range m.cfg.Endpoints {
		r := <-results
		if r.err == nil {
			winner = r.endpoint
			cancel()
			break
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.endpoint, r.err))
	}
	latency := m.now().Sub(start)

	if winner != "" {
		m.recordSuccess(winner, latency)
		return winner, nil
	}

	err := fmt.Errorf("%w: %w", ErrAllEndpointsFailed, errors.Join(errs...))
	m.recordFailure(err)
	return "", err
}

func (m *Monitor) recordSuccess(endpoint string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.ActiveEndpoint != endpoint || !m.status.Connected {
		m.logger.Info("rpc endpoint connected",
			slog.String("endpoint", endpoint),
			slog.Duration("latency", latency),
		)
	}

	m.status.Connected = true
	m.status.ActiveEndpoint = endpoint
	m.status.ConsecutiveFailures = 0
	m.status.LastCheck = m.now()
	m.status.LastLatency = latency
	m.status.LastError = ""
}

func (m *Monitor) recordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.ConsecutiveFailures++
	m.status.LastCheck = m.now()
	m.status.LastError = err.Error()

	if m.status.ConsecutiveFailures >= m.cfg.FailureThreshold {
		if m.status.Connected {
			m.logger.Warn("rpc connection lost",
				slog.Int("consecutive_failures", m.status.ConsecutiveFailures),
				slog.String("error", err.Error()),
			)
		}
		m.status.Connected = false
	} else {
		m.logger.Debug("rpc health check failed",
			slog.Int("consecutive_failures", m.status.ConsecutiveFailures),
			slog.String("error", err.Error()),
		)
	}
}

// Start runs a check immediately and then every CheckInterval until ctx is
// done or Stop is called. A monitor whose loop has ended can be started again.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		select {
		case <-m.done:
			// The previous loop ended with its context.
			m.cancel()
		default:
			return ErrAlreadyStarted
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.loop(ctx, m.done)
	return nil
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		_, _ = m.Check(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts the background loop and waits for it to exit. It is safe to
// call more than once.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	m.cancel()
	<-m.done
	m.running = false
}
