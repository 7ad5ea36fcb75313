package testutil

import (
	"os"
	"testing"
)

func TestWithIsolatedEnv_RestoresEnv(t *testing.T) {
	t.Setenv("HOTSWAP_RUNTIME_NAME", "orig")
	os.Unsetenv("HOTSWAP_LOG_LEVEL")

	WithIsolatedEnv(DefaultTrackedEnv, func() {
		os.Setenv("HOTSWAP_RUNTIME_NAME", "changed")
		os.Setenv("HOTSWAP_LOG_LEVEL", "debug")
		if v := os.Getenv("HOTSWAP_RUNTIME_NAME"); v != "changed" {
			t.Fatalf("expected changed inside, got %s", v)
		}
	})

	if v := os.Getenv("HOTSWAP_RUNTIME_NAME"); v != "orig" {
		t.Fatalf("expected HOTSWAP_RUNTIME_NAME=orig after restore, got %s", v)
	}
	if _, ok := os.LookupEnv("HOTSWAP_LOG_LEVEL"); ok {
		t.Fatalf("HOTSWAP_LOG_LEVEL should be unset after restore")
	}
}

func TestIsolate_RestoresEnvAndLIFO(t *testing.T) {
	t.Setenv("HOTSWAP_RUNTIME_NAME", "base")
	os.Unsetenv("HOTSWAP_LOG_LEVEL")

	// Registered first so it runs last.
	t.Cleanup(func() {
		if v := os.Getenv("HOTSWAP_RUNTIME_NAME"); v != "base" {
			t.Fatalf("expected HOTSWAP_RUNTIME_NAME=base after cleanup, got %s", v)
		}
		if _, ok := os.LookupEnv("HOTSWAP_LOG_LEVEL"); ok {
			t.Fatalf("HOTSWAP_LOG_LEVEL should be unset after cleanup")
		}
	})

	Isolate(t)
	os.Setenv("HOTSWAP_RUNTIME_NAME", "layer1")
	os.Setenv("HOTSWAP_LOG_LEVEL", "info")

	Isolate(t, "HOTSWAP_RUNTIME_NAME", "HOTSWAP_LOG_LEVEL")
	os.Setenv("HOTSWAP_RUNTIME_NAME", "layer2")
	os.Setenv("HOTSWAP_LOG_LEVEL", "warn")
}
