package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/model"
)

func startNATSServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSSinkPublishes(t *testing.T) {
	ns := startNATSServer(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync(DefaultNATSSubject)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	sink, err := NewNATSSink(zap.NewNop(), ns.ClientURL(), "", "seccollector-test")
	require.NoError(t, err)
	assert.Equal(t, "nats", sink.Name())

	a := fixedGenerator(time.Date(2026, 10, 19, 9, 0, 5, 0, time.UTC)).Security(sampleEvent())
	require.NoError(t, sink.Send(context.Background(), a))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &rec))
	assert.Equal(t, "security_alert", rec["type"])
	assert.Equal(t, a.ID, rec["alert_id"])

	assert.NoError(t, sink.Close())
}

func TestNATSSinkServerDown(t *testing.T) {
	// the client keeps retrying in the background and buffers publishes meanwhile
	sink, err := NewNATSSink(zap.NewNop(), "nats://127.0.0.1:1", "alerts.test", "seccollector-test")
	require.NoError(t, err)

	a := fixedGenerator(time.Now()).Security(sampleEvent())
	assert.NoError(t, sink.Send(context.Background(), a))
	assert.NoError(t, sink.Close())
}

type stubPusher struct {
	got []model.Alert
	err error
}

func (p *stubPusher) PushAlert(ctx context.Context, a model.Alert) error {
	p.got = append(p.got, a)
	return p.err
}

func TestPushSink(t *testing.T) {
	p := &stubPusher{}
	sink := NewPushSink("management", p)
	assert.Equal(t, "management", sink.Name())

	a := fixedGenerator(time.Now()).Security(sampleEvent())
	require.NoError(t, sink.Send(context.Background(), a))
	require.Len(t, p.got, 1)
	assert.Equal(t, a.ID, p.got[0].ID)

	p.err = errors.New("503 service unavailable")
	assert.Error(t, sink.Send(context.Background(), a))
}
