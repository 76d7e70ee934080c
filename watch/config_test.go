package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pairkit/server/namespace"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.toml")
	if err := os.WriteFile(path, []byte("[namespaces.eip155]\nchains = [\"eip155:1\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	catalog := namespace.NewCatalog(namespace.Default())
	w := NewConfigWatcher(path, catalog.Reload)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[namespaces.eip155]\nchains = [\"eip155:10\"]\nmethods = [\"personal_sign\"]\nevents = []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		chains := catalog.Supported()["eip155"].Chains
		return len(chains) == 1 && chains[0] == "eip155:10"
	})
}

func TestConfigWatcher_DebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.toml")
	os.WriteFile(path, nil, 0644)

	var calls atomic.Int32
	w := NewConfigWatcher(path, func(string) error {
		calls.Add(1)
		return nil
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		os.WriteFile(path, []byte{byte('a' + i)}, 0644)
	}

	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(3 * debounceInterval)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single reload for a burst, got %d", got)
	}
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "namespaces.toml")
	os.WriteFile(path, nil, 0644)

	var calls atomic.Int32
	w := NewConfigWatcher(path, func(string) error {
		calls.Add(1)
		return nil
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0644)
	time.Sleep(3 * debounceInterval)

	if calls.Load() != 0 {
		t.Error("reload triggered by unrelated file")
	}
}

func TestConfigWatcher_StartMissingDir(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "missing", "ns.toml"), func(string) error { return nil })
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("expected error for missing directory")
	}
}
