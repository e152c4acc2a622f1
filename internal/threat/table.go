// Package threat matches security events against known threat indicators.
package threat

import (
	"sort"
	"strings"
	"sync"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// Table is the indicator table keyed by "{type}:{value}". All mutation goes
// through the table lock, so indicator counts are never lost under concurrency.
type Table struct {
	mu         sync.RWMutex
	indicators map[string]*model.ThreatIndicator
}

// NewTable creates an empty indicator table
func NewTable() *Table {
	return &Table{
		indicators: make(map[string]*model.ThreatIndicator),
	}
}

// Lookup returns a copy of the indicator stored under key
func (t *Table) Lookup(key string) (model.ThreatIndicator, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ind, ok := t.indicators[key]
	if !ok {
		return model.ThreatIndicator{}, false
	}
	return *ind, true
}

// Len returns the number of indicators
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.indicators)
}

// Snapshot returns copies of all indicators ordered by key
func (t *Table) Snapshot() []model.ThreatIndicator {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.ThreatIndicator, 0, len(t.indicators))
	for _, ind := range t.indicators {
		out = append(out, *ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Merge adds new indicators and refreshes the metadata of known ones. Hit
// counts and sighting times of known indicators are kept.
func (t *Table) Merge(indicators []model.ThreatIndicator) (added, updated int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, in := range indicators {
		in.Value = strings.TrimSpace(in.Value)
		if in.Value == "" {
			continue
		}
		key := in.Key()
		if existing, ok := t.indicators[key]; ok {
			existing.ThreatType = in.ThreatType
			existing.Confidence = in.Confidence
			existing.Source = in.Source
			if in.Count > existing.Count {
				existing.Count = in.Count
			}
			updated++
			continue
		}
		ind := in
		t.indicators[key] = &ind
		added++
	}
	return added, updated
}

// Correlate looks up every indicator the event carries. Each hit increments
// the indicator's count and moves its last_seen to the event timestamp; the
// updated indicators are returned as copies.
func (t *Table) Correlate(ev model.SecurityEvent) []model.ThreatIndicator {
	keys := Extract(ev)
	if len(keys) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var hits []model.ThreatIndicator
	for _, key := range keys {
		ind, ok := t.indicators[key]
		if !ok {
			continue
		}
		ind.Count++
		ind.LastSeen = ev.Timestamp
		hits = append(hits, *ind)
	}
	return hits
}

// Extract returns the indicator keys observable in an event
func Extract(ev model.SecurityEvent) []string {
	var keys []string
	if ip := ev.NetworkInfo["source_ip"]; ip != "" {
		keys = append(keys, model.IndicatorKey(model.IndicatorIP, ip))
	}
	if domain := ev.NetworkInfo["domain"]; domain != "" {
		keys = append(keys, model.IndicatorKey(model.IndicatorDomain, domain))
	}
	if url := ev.NetworkInfo["url"]; url != "" {
		keys = append(keys, model.IndicatorKey(model.IndicatorURL, url))
	}
	if hash := ev.FileInfo["hash"]; hash != "" {
		keys = append(keys, model.IndicatorKey(model.IndicatorHash, hash))
	}
	return keys
}
