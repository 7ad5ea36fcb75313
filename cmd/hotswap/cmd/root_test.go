package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/hotswap/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	t.Run("should_print_help", func(t *testing.T) {
		out, err := execute(t, "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "publishes, serves and inspects hot updates")
		for _, sub := range []string{"serve", "publish", "inspect", "follow"} {
			assert.Contains(t, out, sub)
		}
	})

	t.Run("should_print_version", func(t *testing.T) {
		out, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "hotswap vdev")
	})
}

func TestRootFlagsLoad(t *testing.T) {
	testutil.Isolate(t)

	t.Run("should_layer_file_env_and_flags", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hotswap.yaml")
		require.NoError(t, os.WriteFile(path, []byte("runtime:\n  name: from-file\nlog:\n  level: warn\n"), 0o600))
		require.NoError(t, os.Setenv("HOTSWAP_RUNTIME_NAME", "from-env"))

		flags := &rootFlags{configPath: path, logFormat: "json"}
		cfg, err := flags.load()
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Runtime.Name)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
	})

	t.Run("should_reject_invalid_settings", func(t *testing.T) {
		require.NoError(t, os.Unsetenv("HOTSWAP_RUNTIME_NAME"))
		flags := &rootFlags{logLevel: "chatty"}
		_, err := flags.load()
		assert.ErrorContains(t, err, "log.level")
	})
}

func TestNewLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger("warn", "json", buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}
