package gazeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetHome(tmp)
	t.Cleanup(func() { SetHome("") })
	return tmp
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	withTempHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFileOverridesOnlyMentionedFields(t *testing.T) {
	tmp := withTempHome(t)

	content := `fanout = 64
log_level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "config.toml"), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	want := Default()
	want.Fanout = 64
	want.LogLevel = "debug"
	assert.Equal(t, want, cfg)
}

func TestLoadMalformedTOML(t *testing.T) {
	tmp := withTempHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "config.toml"), []byte("not valid [[ toml"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config.toml")
}

func TestSaveThenLoadRoundtrip(t *testing.T) {
	withTempHome(t)

	cfg := Default()
	cfg.Fanout = 48
	cfg.MemoryBudgetBytes = 1 << 30
	cfg.TabStopWidth = 4

	require.NoError(t, Save(cfg))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestSaveCreatesHomeDirectory(t *testing.T) {
	tmp := t.TempDir()
	nested := filepath.Join(tmp, "nested", ".gaze")
	SetHome(nested)
	t.Cleanup(func() { SetHome("") })

	require.NoError(t, Save(Default()))

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestHomePrecedence(t *testing.T) {
	t.Cleanup(func() {
		SetHome("")
		os.Unsetenv("GAZE_HOME")
	})

	SetHome("")
	os.Setenv("GAZE_HOME", "/env/gaze")
	assert.Equal(t, "/env/gaze", Home())

	SetHome("/override/gaze")
	assert.Equal(t, "/override/gaze", Home())
}
