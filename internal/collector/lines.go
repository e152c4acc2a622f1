package collector

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/parser"
	"github.com/shizukutanaka/seccollector/internal/tailer"
)

// partialLine is the unterminated end of the last chunk read from a source.
// It is only valid while the source cursor still sits at offset on the same file.
type partialLine struct {
	id     tailer.Identity
	offset int64
	data   []byte
	// oversized lines are not kept; everything up to the next newline is dropped
	oversized bool
}

// completeLines returns the whole lines available for source after data was
// read up to cur. A trailing partial line is held back and prepended to the
// next chunk. A partial line that sees no new data for a whole cycle is
// returned as is, so a final line without a newline is not lost.
func (c *Collector) completeLines(source string, cur tailer.Cursor, data []byte) []byte {
	c.tailMu.Lock()
	defer c.tailMu.Unlock()

	tail, held := c.tails[source]
	delete(c.tails, source)
	if held && (tail.id != cur.Identity || tail.offset != cur.Offset-int64(len(data))) {
		c.logger.Debug("Dropping partial line of replaced log file",
			zap.String("source", source),
			zap.Int("bytes", len(tail.data)),
		)
		held = false
	}

	if len(data) == 0 {
		switch {
		case held && tail.oversized:
			c.tails[source] = tail
		case held:
			return tail.data
		}
		return nil
	}

	if held && tail.oversized {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			tail.offset = cur.Offset
			c.tails[source] = tail
			return nil
		}
		data = data[i+1:]
		held = false
	}

	buf := data
	if held {
		buf = make([]byte, 0, len(tail.data)+len(data))
		buf = append(buf, tail.data...)
		buf = append(buf, data...)
	}

	end := bytes.LastIndexByte(buf, '\n') + 1
	if end == len(buf) {
		return buf
	}

	next := partialLine{id: cur.Identity, offset: cur.Offset}
	if rest := buf[end:]; len(rest) > parser.MaxLineLength {
		next.oversized = true
	} else {
		next.data = bytes.Clone(rest)
	}
	c.tails[source] = next
	return buf[:end]
}
