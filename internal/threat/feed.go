package threat

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// Feed supplies threat indicators
type Feed interface {
	Name() string
	Indicators(ctx context.Context) ([]model.ThreatIndicator, error)
}

// FileFeed reads indicators from a YAML file:
//
//	indicators:
//	  - indicator_type: ip
//	    value: 203.0.113.7
//	    threat_type: bruteforce
//	    confidence: 0.9
type FileFeed struct {
	path string
	now  func() time.Time
}

type indicatorFile struct {
	Indicators []model.ThreatIndicator `yaml:"indicators"`
}

// NewFileFeed creates a feed over the YAML file at path
func NewFileFeed(path string) *FileFeed {
	return &FileFeed{
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Feed
func (f *FileFeed) Name() string { return "file:" + f.path }

// Indicators implements Feed. Entries with an unknown type or empty value are rejected.
func (f *FileFeed) Indicators(ctx context.Context) ([]model.ThreatIndicator, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read indicator file: %w", err)
	}

	var file indicatorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse indicator file: %w", err)
	}

	now := f.now()
	out := make([]model.ThreatIndicator, 0, len(file.Indicators))
	for i, ind := range file.Indicators {
		switch ind.Type {
		case model.IndicatorIP, model.IndicatorDomain, model.IndicatorHash, model.IndicatorURL:
		default:
			return nil, fmt.Errorf("indicator %d: unknown type %q", i, ind.Type)
		}
		if ind.Value == "" {
			return nil, fmt.Errorf("indicator %d: empty value", i)
		}
		if ind.Source == "" {
			ind.Source = f.Name()
		}
		if ind.FirstSeen.IsZero() {
			ind.FirstSeen = now
		}
		if ind.LastSeen.IsZero() {
			ind.LastSeen = ind.FirstSeen
		}
		out = append(out, ind)
	}
	return out, nil
}
