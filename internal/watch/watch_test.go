package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// --- Event handling ---

func TestWatchTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 8)
	w, err := Start(dir, 50*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeFile(t, filepath.Join(dir, "providers.yaml"), "providers: []")
	if !waitSignal(t, fired, 5*time.Second) {
		t.Fatal("write did not trigger a recompile callback")
	}
}

func TestWatchCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	var count atomic.Int32
	w, err := Start(dir, 400*time.Millisecond, func() { count.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(dir, "routing.yaml"), "default_provider: ollama")
	}

	time.Sleep(1500 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Fatalf("burst of writes fired %d callbacks, want 1", got)
	}
}

func TestWatchPicksUpNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 8)
	w, err := Start(dir, 50*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	sub := filepath.Join(dir, "overrides")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if !waitSignal(t, fired, 5*time.Second) {
		t.Fatal("directory creation did not trigger")
	}

	// Let the debounce window settle before the write inside the new dir.
	time.Sleep(200 * time.Millisecond)
	for len(fired) > 0 {
		<-fired
	}

	writeFile(t, filepath.Join(sub, "extra.yaml"), "providers: []")
	if !waitSignal(t, fired, 5*time.Second) {
		t.Fatal("write inside a new subdirectory did not trigger")
	}
}

func TestWatchIgnoresDotfiles(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 8)
	w, err := Start(dir, 50*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeFile(t, filepath.Join(dir, ".providers.yaml.swp"), "noise")
	if waitSignal(t, fired, 500*time.Millisecond) {
		t.Fatal("dotfile write must not trigger")
	}
}

func TestCloseStopsCallbacks(t *testing.T) {
	dir := t.TempDir()
	var count atomic.Int32
	w, err := Start(dir, 50*time.Millisecond, func() { count.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(dir, "providers.yaml"), "providers: []")
	time.Sleep(300 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatal("closed watcher must not fire callbacks")
	}
}

// --- Event filter ---

func TestShouldTrigger(t *testing.T) {
	cases := []struct {
		name string
		evt  fsnotify.Event
		want bool
	}{
		{"write", fsnotify.Event{Name: "/reg/providers.yaml", Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: "/reg/routing.toml", Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: "/reg/old.yaml", Op: fsnotify.Remove}, true},
		{"dotfile", fsnotify.Event{Name: "/reg/.routing.yaml.swp", Op: fsnotify.Write}, false},
		{"empty name", fsnotify.Event{Name: "  ", Op: fsnotify.Write}, false},
		{"no op", fsnotify.Event{Name: "/reg/providers.yaml"}, false},
	}
	for _, tc := range cases {
		if got := shouldTrigger(tc.evt); got != tc.want {
			t.Errorf("%s: shouldTrigger = %v, want %v", tc.name, got, tc.want)
		}
	}
}
