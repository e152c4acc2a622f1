package threat

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shizukutanaka/seccollector/internal/model"
)

func knownIP(value string, count int) model.ThreatIndicator {
	return model.ThreatIndicator{
		Type:       model.IndicatorIP,
		Value:      value,
		ThreatType: "bruteforce",
		Confidence: 0.9,
		Count:      count,
		Source:     "test",
	}
}

func TestCorrelateIncrementsCountAndLastSeen(t *testing.T) {
	table := NewTable()
	added, _ := table.Merge([]model.ThreatIndicator{knownIP("10.0.0.5", 3)})
	require.Equal(t, 1, added)

	ts := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	ev := model.SecurityEvent{
		Timestamp:   ts,
		EventType:   "authentication_failure",
		NetworkInfo: map[string]string{"source_ip": "10.0.0.5"},
	}

	hits := table.Correlate(ev)
	require.Len(t, hits, 1)
	assert.Equal(t, 4, hits[0].Count)
	assert.Equal(t, ts, hits[0].LastSeen)

	stored, ok := table.Lookup("ip:10.0.0.5")
	require.True(t, ok)
	assert.Equal(t, 4, stored.Count)
	assert.Equal(t, ts, stored.LastSeen)
}

func TestCorrelateMiss(t *testing.T) {
	table := NewTable()
	table.Merge([]model.ThreatIndicator{knownIP("10.0.0.5", 0)})

	assert.Empty(t, table.Correlate(model.SecurityEvent{NetworkInfo: map[string]string{"source_ip": "10.0.0.6"}}))
	assert.Empty(t, table.Correlate(model.SecurityEvent{}))
	_, ok := table.Lookup("ip:10.0.0.6")
	assert.False(t, ok)
}

func TestCorrelateHash(t *testing.T) {
	table := NewTable()
	table.Merge([]model.ThreatIndicator{{Type: model.IndicatorHash, Value: "deadbeef"}})

	hits := table.Correlate(model.SecurityEvent{FileInfo: map[string]string{"hash": "deadbeef"}})
	require.Len(t, hits, 1)
	assert.Equal(t, "hash:deadbeef", hits[0].Key())
}

func TestLookupReturnsCopy(t *testing.T) {
	table := NewTable()
	table.Merge([]model.ThreatIndicator{knownIP("10.0.0.5", 1)})

	ind, _ := table.Lookup("ip:10.0.0.5")
	ind.Count = 100

	stored, _ := table.Lookup("ip:10.0.0.5")
	assert.Equal(t, 1, stored.Count)
}

func TestMergeKeepsCounts(t *testing.T) {
	table := NewTable()
	table.Merge([]model.ThreatIndicator{knownIP("10.0.0.5", 7)})

	refreshed := knownIP("10.0.0.5", 0)
	refreshed.ThreatType = "scanner"
	added, updated := table.Merge([]model.ThreatIndicator{refreshed, knownIP(" ", 0)})

	assert.Equal(t, 0, added)
	assert.Equal(t, 1, updated)
	stored, _ := table.Lookup("ip:10.0.0.5")
	assert.Equal(t, 7, stored.Count)
	assert.Equal(t, "scanner", stored.ThreatType)
	assert.Equal(t, 1, table.Len())
}

func TestCorrelateConcurrentHitsAreCounted(t *testing.T) {
	table := NewTable()
	table.Merge([]model.ThreatIndicator{knownIP("10.0.0.5", 0)})
	ev := model.SecurityEvent{NetworkInfo: map[string]string{"source_ip": "10.0.0.5"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				table.Correlate(ev)
			}
		}()
	}
	wg.Wait()

	stored, _ := table.Lookup("ip:10.0.0.5")
	assert.Equal(t, 800, stored.Count)
}

func TestFileFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	content := `indicators:
  - indicator_type: ip
    value: 203.0.113.7
    threat_type: bruteforce
    confidence: 0.9
  - indicator_type: domain
    value: evil.example
    threat_type: c2
    source: partner
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	feed := NewFileFeed(path)
	indicators, err := feed.Indicators(context.Background())
	require.NoError(t, err)
	require.Len(t, indicators, 2)

	assert.Equal(t, "ip:203.0.113.7", indicators[0].Key())
	assert.Equal(t, feed.Name(), indicators[0].Source)
	assert.False(t, indicators[0].FirstSeen.IsZero())
	assert.Equal(t, "partner", indicators[1].Source)
}

func TestFileFeedRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indicators:\n  - indicator_type: email\n    value: x@y\n"), 0o644))

	_, err := NewFileFeed(path).Indicators(context.Background())
	assert.Error(t, err)

	_, err = NewFileFeed(filepath.Join(t.TempDir(), "missing.yaml")).Indicators(context.Background())
	assert.Error(t, err)
}
