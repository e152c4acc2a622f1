package metrics

import (
	"context"
	"sync/atomic"
)

// Counters accumulates pipeline activity between metric cycles
type Counters struct {
	failedLogins   atomic.Int64
	securityAlerts atomic.Int64
}

// AddFailedLogins records n failed authentications
func (c *Counters) AddFailedLogins(n int) {
	c.failedLogins.Add(int64(n))
}

// AddSecurityAlerts records n emitted alerts
func (c *Counters) AddSecurityAlerts(n int) {
	c.securityAlerts.Add(int64(n))
}

// drain returns the counts since the previous drain and resets them
func (c *Counters) drain() (failed, alerts int64) {
	return c.failedLogins.Swap(0), c.securityAlerts.Swap(0)
}

// SecurityCollector reports failed logins and alerts seen since the last cycle
type SecurityCollector struct {
	counters *Counters
}

// NewSecurityCollector creates a security collector reading from counters
func NewSecurityCollector(counters *Counters) *SecurityCollector {
	return &SecurityCollector{counters: counters}
}

// Name implements SubCollector
func (s *SecurityCollector) Name() string { return "security" }

// Collect implements SubCollector
func (s *SecurityCollector) Collect(ctx context.Context) (Sample, error) {
	failed, alerts := s.counters.drain()
	return Sample{
		KeyFailedLogins:   float64(failed),
		KeySecurityAlerts: float64(alerts),
	}, nil
}

// ComplianceCollector reports the configured compliance score
type ComplianceCollector struct {
	score func() float64
}

// NewComplianceCollector creates a compliance collector. score is read on every cycle
// so a reloaded configuration takes effect.
func NewComplianceCollector(score func() float64) *ComplianceCollector {
	return &ComplianceCollector{score: score}
}

// Name implements SubCollector
func (c *ComplianceCollector) Name() string { return "compliance" }

// Collect implements SubCollector
func (c *ComplianceCollector) Collect(ctx context.Context) (Sample, error) {
	return Sample{KeyComplianceScore: c.score()}, nil
}
