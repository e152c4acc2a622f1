// Package parser turns raw log content into classified security events.
//
// Each log format has its own line classifier; formats are looked up in a
// table so the collection loop never switches on format names itself.
package parser

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// MaxLineLength is the longest line classified. Longer lines are skipped.
const MaxLineLength = 1 << 20

// Supported log formats
const (
	FormatAuth   = "auth"
	FormatSyslog = "syslog"
	FormatAudit  = "audit"
	FormatApache = "apache"
	FormatNginx  = "nginx"
)

// Event types produced by the classifiers
const (
	EventAuthFailure = "authentication_failure"
	EventAuthSuccess = "authentication_success"
	EventSystem      = "system_event"
	EventSyscall     = "system_call"
	EventWebAccess   = "web_access"
)

// classification is what a line classifier decides about a single line
type classification struct {
	eventType   string
	severity    model.Severity
	description string
	user        string
	process     string
	network     map[string]string
	details     map[string]string
}

type lineClassifier func(line string) (classification, bool)

var classifiers = map[string]lineClassifier{
	FormatAuth:   classifyAuth,
	FormatSyslog: classifySyslog,
	FormatAudit:  classifyAudit,
	FormatApache: classifyWeb,
	FormatNginx:  classifyWeb,
}

var sourceNames = map[string]string{
	FormatAuth:   "auth_log",
	FormatSyslog: "syslog",
	FormatAudit:  "audit_log",
	FormatApache: "apache_log",
	FormatNginx:  "nginx_log",
}

// Supported reports whether format has a classifier
func Supported(format string) bool {
	_, ok := classifiers[format]
	return ok
}

// Formats returns the supported format names
func Formats() []string {
	return []string{FormatAuth, FormatSyslog, FormatAudit, FormatApache, FormatNginx}
}

// SourceName returns the event source tag for a format
func SourceName(format string) string {
	if name, ok := sourceNames[format]; ok {
		return name
	}
	return format
}

// Parse classifies every line of content. Lines that match no rule are dropped,
// and an unknown format yields no events.
func Parse(format, source string, content []byte, host string) []model.SecurityEvent {
	return ParseAt(format, source, content, host, time.Now().UTC())
}

// ParseAt is Parse with an explicit observation time
func ParseAt(format, source string, content []byte, host string, observed time.Time) []model.SecurityEvent {
	classify, ok := classifiers[format]
	if !ok || len(content) == 0 {
		return nil
	}

	var events []model.SecurityEvent
	for rest := content; len(rest) > 0; {
		var raw []byte
		raw, rest, _ = bytes.Cut(rest, []byte{'\n'})
		if len(raw) > MaxLineLength {
			continue
		}
		line := strings.TrimRight(string(raw), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		c, ok := classify(line)
		if !ok {
			continue
		}

		details := map[string]string{"log_line": line}
		for k, v := range c.details {
			details[k] = v
		}

		events = append(events, model.SecurityEvent{
			ID:          uuid.New().String(),
			Timestamp:   observed,
			EventType:   c.eventType,
			Source:      source,
			Severity:    c.severity,
			Description: c.description,
			Details:     details,
			Host:        host,
			User:        c.user,
			Process:     c.process,
			NetworkInfo: c.network,
		})
	}
	return events
}

// sshd style: "Failed password for [invalid user] <user> from <ip> port <port>"
var authPattern = regexp.MustCompile(`(?:Failed|Accepted) password for (?:invalid user )?(\S+) from (\S+) port (\d+)`)

func classifyAuth(line string) (classification, bool) {
	var c classification
	switch {
	case strings.Contains(line, "Failed password"):
		c = classification{
			eventType:   EventAuthFailure,
			severity:    model.SeverityMedium,
			description: "Failed password authentication",
		}
	case strings.Contains(line, "Accepted password"):
		c = classification{
			eventType:   EventAuthSuccess,
			severity:    model.SeverityInfo,
			description: "Successful password authentication",
		}
	default:
		return c, false
	}

	if m := authPattern.FindStringSubmatch(line); m != nil {
		c.user = m[1]
		c.network = map[string]string{
			"source_ip":   m[2],
			"source_port": m[3],
		}
	}
	if strings.Contains(line, "sshd[") {
		c.process = "sshd"
	}
	return c, true
}

func classifySyslog(line string) (classification, bool) {
	lower := strings.ToLower(line)
	matched := false
	for _, kw := range []string{"error", "warning", "critical", "alert"} {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return classification{}, false
	}

	severity := model.SeverityMedium
	if strings.Contains(lower, "critical") || strings.Contains(lower, "alert") {
		severity = model.SeverityHigh
	}
	return classification{
		eventType:   EventSystem,
		severity:    severity,
		description: "System log event",
	}, true
}

func classifyAudit(line string) (classification, bool) {
	if !strings.HasPrefix(line, "type=") || !strings.Contains(line, "type=SYSCALL") {
		return classification{}, false
	}

	fields := auditFields(line)
	c := classification{
		eventType:   EventSyscall,
		severity:    model.SeverityInfo,
		description: "System call audit event",
		details:     make(map[string]string),
	}
	for _, key := range []string{"syscall", "success", "uid", "auid", "comm", "exe"} {
		if v, ok := fields[key]; ok {
			c.details[key] = v
		}
	}
	c.process = fields["exe"]
	return c, true
}

// auditFields splits an audit record into key=value pairs, unquoting values
func auditFields(line string) map[string]string {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(line) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		fields[k] = strings.Trim(v, `"`)
	}
	return fields
}

func classifyWeb(line string) (classification, bool) {
	var severity model.Severity
	var status string
	switch {
	case strings.Contains(line, " 403 "):
		severity, status = model.SeverityMedium, "403"
	case strings.Contains(line, " 404 "):
		severity, status = model.SeverityLow, "404"
	case strings.Contains(line, " 500 "):
		severity, status = model.SeverityLow, "500"
	default:
		return classification{}, false
	}

	c := classification{
		eventType:   EventWebAccess,
		severity:    severity,
		description: "Web access event",
		details:     map[string]string{"status": status},
	}
	if first, _, ok := strings.Cut(line, " "); ok && first != "" {
		c.network = map[string]string{"source_ip": first}
	}
	return c, true
}
