package gazectl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovaxis/gaze/internal/buffer"
	"github.com/kovaxis/gaze/internal/gazeconfig"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpenBufferAndSettle(t *testing.T) {
	path := writeTempFile(t, "line one\nline two\nline three\n")
	cfg := gazeconfig.Default()

	buf, file, err := openBuffer(path, cfg)
	require.NoError(t, err)
	defer buf.Close()
	defer file.Close()

	settleBuffer(buf, 2*time.Second)

	ans := buf.QueryRect(buffer.Rect{Start: 0, End: buf.DocLength()})
	assert.Empty(t, ans.UnmappedRuns)
	require.Len(t, ans.ResidentRuns, 1)
}

func TestOpenCommandPrintsSummary(t *testing.T) {
	path := writeTempFile(t, "hello\nworld\n")

	out, err := execRoot(t, "open", path, "--timeout", "2s")
	require.NoError(t, err)

	var summary struct {
		Path      string `json:"path"`
		DocLength int64  `json:"doc_length"`
		Epoch     uint64 `json:"epoch"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, path, summary.Path)
	assert.Equal(t, int64(len("hello\nworld\n")), summary.DocLength)
}

func TestOpenCommandMissingFile(t *testing.T) {
	_, err := execRoot(t, "open", "/nonexistent/path/doc.txt")
	require.Error(t, err)
}
