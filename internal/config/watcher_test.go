package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type watched struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadWatched(path string) (watched, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return watched{}, err
	}
	var w watched
	err = toml.Unmarshal(data, &w)
	return w, err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[watched]) *Watcher[watched] {
	t.Helper()
	opts = append([]WatcherOption[watched]{WithDebounce[watched](30 * time.Millisecond)}, opts...)
	w := NewWatcher(path, loadWatched, quietLogger(), opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return w
}

func TestWatcherReload(t *testing.T) {
	path := writeFile(t, "presets.toml", "name = \"a\"\nvalue = 1\n")
	w := startWatcher(t, path)

	got := make(chan watched, 4)
	w.OnReload(func(v watched) { got <- v })

	if err := os.WriteFile(path, []byte("name = \"b\"\nvalue = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-got:
		if v.Name != "b" || v.Value != 2 {
			t.Fatalf("reloaded %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
}

func TestWatcherRenameOverFile(t *testing.T) {
	path := writeFile(t, "presets.toml", "value = 1\n")
	w := startWatcher(t, path)

	got := make(chan watched, 4)
	w.OnReload(func(v watched) { got <- v })

	tmp := filepath.Join(filepath.Dir(path), "presets.toml.tmp")
	if err := os.WriteFile(tmp, []byte("value = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-got:
		if v.Value != 9 {
			t.Fatalf("reloaded %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rename was not seen")
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	path := writeFile(t, "presets.toml", "value = 1\n")
	var loads atomic.Int32
	w := NewWatcher(path, func(p string) (watched, error) {
		loads.Add(1)
		return loadWatched(p)
	}, quietLogger(), WithDebounce[watched](20*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if n := loads.Load(); n != 0 {
		t.Fatalf("sibling change caused %d loads", n)
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := writeFile(t, "presets.toml", "value = 0\n")
	var loads atomic.Int32
	w := NewWatcher(path, func(p string) (watched, error) {
		loads.Add(1)
		return loadWatched(p)
	}, quietLogger(), WithDebounce[watched](150*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	last := make(chan watched, 8)
	w.OnReload(func(v watched) { last <- v })
	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(path, []byte("value = "+string(rune('0'+i))+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case v := <-last:
		if v.Value != 5 {
			t.Fatalf("debounced load saw %d", v.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
	time.Sleep(200 * time.Millisecond)
	if n := loads.Load(); n != 1 {
		t.Fatalf("%d loads for one burst", n)
	}
}

func TestWatcherUnsubscribeAndErrors(t *testing.T) {
	path := writeFile(t, "presets.toml", "value = 1\n")
	failures := make(chan error, 4)
	w := startWatcher(t, path, WithErrorHandler[watched](func(err error) { failures <- err }))

	var called atomic.Int32
	unsubscribe := w.OnReload(func(watched) { called.Add(1) })
	unsubscribe()

	if err := os.WriteFile(path, []byte("value = [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-failures:
		var de *toml.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("error %T %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
	if called.Load() != 0 {
		t.Fatal("handler called after unsubscribe or on a failed load")
	}
}

func TestWatcherContextStops(t *testing.T) {
	path := writeFile(t, "presets.toml", "value = 1\n")
	w := NewWatcher(path, loadWatched, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(ctx); err == nil {
		t.Fatal("second start succeeded")
	}
	cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop blocked after cancel")
	}
}
