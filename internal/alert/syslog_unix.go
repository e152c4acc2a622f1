//go:build !windows && !plan9

package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/syslog"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// SyslogSink writes alerts to a syslog daemon under the auth facility
type SyslogSink struct {
	w *syslog.Writer
}

// NewSyslogSink connects to the daemon at network/addr with tag. Empty
// network and addr use the local syslog socket.
func NewSyslogSink(network, addr, tag string) (*SyslogSink, error) {
	if tag == "" {
		tag = "seccollector"
	}
	w, err := syslog.Dial(network, addr, syslog.LOG_WARNING|syslog.LOG_AUTH, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to open syslog: %w", err)
	}
	return &SyslogSink{w: w}, nil
}

// Name implements Sink
func (s *SyslogSink) Name() string { return "syslog" }

// Send implements Sink. Threat alerts and high-severity anomalies go out at
// crit, everything else at warning.
func (s *SyslogSink) Send(ctx context.Context, a model.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	msg := string(data)
	if critical(a) {
		return s.w.Crit(msg)
	}
	return s.w.Warning(msg)
}

// Close closes the syslog connection
func (s *SyslogSink) Close() error {
	return s.w.Close()
}

func critical(a model.Alert) bool {
	switch p := a.Payload.(type) {
	case model.ThreatPayload:
		return true
	case model.AnomalyPayload:
		return p.Severity == model.SeverityHigh
	case model.SecurityPayload:
		return p.Event.Severity == model.SeverityCritical
	}
	return false
}
