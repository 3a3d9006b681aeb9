package api

import (
	"context"
	"sync"
	"time"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Check probes one dependency. A failing critical check makes the whole
// service critical; others only degrade it.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

// ComponentHealth is the last observed state of one dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
	CheckedAt    time.Time                  `json:"checked_at"`
}

// Monitor aggregates health status from the configured checks.
type Monitor struct {
	checks     []Check
	interval   time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a monitor that re-probes at most once per interval.
func NewMonitor(interval time.Duration, checks ...Check) *Monitor {
	return &Monitor{checks: checks, interval: interval}
}

// CheckHealth runs every probe, reusing a recent report when available.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering dependencies
	if m.lastReport != nil && time.Since(m.lastCheck) < m.interval {
		return m.lastReport
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checks)),
		CheckedAt:    time.Now().UTC(),
	}
	for _, c := range m.checks {
		h := ComponentHealth{Name: c.Name, Status: StatusHealthy}
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := c.Probe(probeCtx)
		cancel()
		if err != nil {
			h.Error = err.Error()
			if c.Critical {
				h.Status = StatusCritical
			} else {
				h.Status = StatusDegraded
			}
		}
		report.Components[c.Name] = h

		// Worst case wins
		if h.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		} else if h.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
