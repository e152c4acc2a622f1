package tailer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
)

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestReadNewReturnsOnlyAppendedBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendFile(t, path, "line one\n")

	tl := New(zap.NewNop(), 0)

	data, err := tl.ReadNew("auth", path)
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(data))

	data, err = tl.ReadNew("auth", path)
	require.NoError(t, err)
	assert.Empty(t, data)

	appendFile(t, path, "line two\n")
	data, err = tl.ReadNew("auth", path)
	require.NoError(t, err)
	assert.Equal(t, "line two\n", string(data))

	cur, ok := tl.Cursor("auth")
	require.True(t, ok)
	assert.Equal(t, int64(len("line one\nline two\n")), cur.Offset)
}

func TestReadNewFollowsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syslog")
	appendFile(t, path, "before rotation with a long line\n")

	tl := New(zap.NewNop(), 0)
	_, err := tl.ReadNew("syslog", path)
	require.NoError(t, err)

	require.NoError(t, os.Rename(path, path+".1"))
	// shorter than the previous offset and longer variants must both be read from 0
	appendFile(t, path, "after\n")

	data, err := tl.ReadNew("syslog", path)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(data))

	require.NoError(t, os.Remove(path+".1"))
	require.NoError(t, os.Rename(path, path+".1"))
	appendFile(t, path, "a much longer line written after the second rotation\n")

	data, err = tl.ReadNew("syslog", path)
	require.NoError(t, err)
	assert.Equal(t, "a much longer line written after the second rotation\n", string(data))
}

func TestReadNewHandlesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	appendFile(t, path, "0123456789\n")

	tl := New(zap.NewNop(), 0)
	_, err := tl.ReadNew("nginx", path)
	require.NoError(t, err)

	require.NoError(t, os.Truncate(path, 0))
	appendFile(t, path, "new\n")

	data, err := tl.ReadNew("nginx", path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
}

func TestReadNewMissingFileKeepsCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	appendFile(t, path, "type=LOGIN msg=audit(1:1)\n")

	tl := New(zap.NewNop(), 0)
	_, err := tl.ReadNew("audit", path)
	require.NoError(t, err)
	before, _ := tl.Cursor("audit")

	_, err = tl.ReadNew("audit", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSourceRead))

	after, _ := tl.Cursor("audit")
	assert.Equal(t, before, after)

	_, err = tl.ReadNew("never", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
	_, ok := tl.Cursor("never")
	assert.False(t, ok)
}

func TestReadNewBoundedChunksConcatenateToHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendFile(t, path, "abcdefghij")

	tl := New(zap.NewNop(), 4)

	var got []byte
	for i := 0; i < 5; i++ {
		data, err := tl.ReadNew("auth", path)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), 4)
		got = append(got, data...)
	}
	assert.Equal(t, "abcdefghij", string(got))
	assert.Len(t, tl.Cursors(), 1)
}

func TestStatDoesNotMoveCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	appendFile(t, path, "line one\n")

	tl := New(zap.NewNop(), 0)
	_, err := tl.ReadNew("auth", path)
	require.NoError(t, err)
	cur, ok := tl.Cursor("auth")
	require.True(t, ok)

	appendFile(t, path, "line two\n")
	id, size, err := Stat(path)
	require.NoError(t, err)
	assert.Equal(t, cur.Identity, id)
	assert.Equal(t, int64(18), size)

	after, _ := tl.Cursor("auth")
	assert.Equal(t, cur, after)

	_, _, err = Stat(filepath.Join(t.TempDir(), "absent.log"))
	assert.True(t, apperrors.Is(err, apperrors.KindSourceRead))
}
