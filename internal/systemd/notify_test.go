package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return r.err == nil, r.err
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestNotifier(r *recorder) *Notifier {
	return &Notifier{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), notify: r.notify}
}

func TestNotifierStates(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r)
	n.Ready()
	n.Status("2 cameras")
	n.Stopping()

	want := []string{"READY=1", "STATUS=2 cameras", "STOPPING=1"}
	if len(r.states) != len(want) {
		t.Fatalf("states %v", r.states)
	}
	for i := range want {
		if r.states[i] != want[i] {
			t.Fatalf("state %d = %q, want %q", i, r.states[i], want[i])
		}
	}
}

func TestNotifierErrorIsLogged(t *testing.T) {
	r := &recorder{err: errors.New("socket gone")}
	n := newTestNotifier(r)
	n.Ready() // must not panic or block
	if r.count("READY=1") != 1 {
		t.Fatal("notify not attempted")
	}
}

func TestWatchdog(t *testing.T) {
	tests := []struct {
		name    string
		healthy bool
		wantAny bool
	}{
		{"healthy pings", true, true},
		{"unhealthy withholds", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			n := newTestNotifier(r)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
			defer cancel()
			n.watchdog(ctx, 10*time.Millisecond, func() bool { return tt.healthy })

			got := r.count("WATCHDOG=1")
			if tt.wantAny && got == 0 {
				t.Fatal("no watchdog pings")
			}
			if !tt.wantAny && got != 0 {
				t.Fatalf("%d pings while unhealthy", got)
			}
		})
	}
}
