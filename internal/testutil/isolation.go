package testutil

import (
	"os"
	"testing"
)

// DefaultTrackedEnv lists the variables Isolate restores when called
// without explicit keys.
var DefaultTrackedEnv = []string{
	"HOTSWAP_RUNTIME_NAME",
	"HOTSWAP_TRANSPORT_KIND",
	"HOTSWAP_TRANSPORT_URL",
	"HOTSWAP_TRANSPORT_DIR",
	"HOTSWAP_LOG_LEVEL",
}

func snapshotEnv(keys []string) map[string]*string {
	snapshot := make(map[string]*string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			val := v
			snapshot[k] = &val
		} else {
			snapshot[k] = nil
		}
	}
	return snapshot
}

func restoreEnv(snapshot map[string]*string) {
	for k, v := range snapshot {
		if v == nil {
			_ = os.Unsetenv(k)
		} else {
			_ = os.Setenv(k, *v)
		}
	}
}

// WithIsolatedEnv runs fn and restores the given variables afterwards.
func WithIsolatedEnv(keys []string, fn func()) {
	snapshot := snapshotEnv(keys)
	defer restoreEnv(snapshot)
	fn()
}

// Isolate snapshots environment variables and restores them in t.Cleanup.
// Safe to call multiple times in a test; restores run LIFO.
func Isolate(t *testing.T, keys ...string) {
	t.Helper()
	if len(keys) == 0 {
		keys = DefaultTrackedEnv
	}
	snapshot := snapshotEnv(keys)
	t.Cleanup(func() {
		restoreEnv(snapshot)
	})
}
