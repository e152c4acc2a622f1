package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWrapAndKindOf(t *testing.T) {
	base := io.ErrUnexpectedEOF
	err := Wrap(base, KindSourceRead, "tailer", "read /var/log/auth.log")

	assert.Equal(t, KindSourceRead, KindOf(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "source_read")

	outer := fmt.Errorf("cycle failed: %w", err)
	assert.True(t, Is(outer, KindSourceRead))
	assert.False(t, Is(outer, KindExportWrite))

	assert.Nil(t, Wrap(nil, KindParse, "parser", "noop"))
	assert.Equal(t, Kind(""), KindOf(io.EOF))
}

func TestHandlerCounts(t *testing.T) {
	h := NewHandler(zap.NewNop())

	h.Handle(New(KindExportWrite, "exporter", "disk full"))
	h.Handle(New(KindExportWrite, "exporter", "disk full"))
	h.Handle(Wrap(io.EOF, KindRemoteUnreachable, "management", "push"))
	h.Handle(io.EOF)
	h.Handle(nil)

	counts := h.Counts()
	assert.Equal(t, uint64(2), counts["export_write"])
	assert.Equal(t, uint64(1), counts["remote_unreachable"])
	assert.Equal(t, uint64(1), counts["unclassified"])
}
