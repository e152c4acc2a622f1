//go:build windows || plan9

package alert

import (
	"context"
	"errors"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// SyslogSink is unavailable on this platform
type SyslogSink struct{}

// NewSyslogSink always fails here
func NewSyslogSink(network, addr, tag string) (*SyslogSink, error) {
	return nil, errors.New("syslog is not supported on this platform")
}

// Name implements Sink
func (s *SyslogSink) Name() string { return "syslog" }

// Send implements Sink
func (s *SyslogSink) Send(ctx context.Context, a model.Alert) error {
	return errors.New("syslog is not supported on this platform")
}
