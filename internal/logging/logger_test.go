package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func reset() {
	mu.Lock()
	defer mu.Unlock()
	loggers = make(map[string]*slog.Logger)
	levels = make(map[string]*slog.LevelVar)
	cfg = Config{}
	ready = false
}

func TestModuleLevels(t *testing.T) {
	reset()
	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"capture": "debug", "api": "warn"},
	})

	tests := []struct {
		module            string
		debug, info, warn bool
	}{
		{"capture", true, true, true},
		{"api", false, false, true},
		{"cameras", false, true, true},
	}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.debug {
				t.Errorf("debug enabled = %t, want %t", got, tt.debug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.info {
				t.Errorf("info enabled = %t, want %t", got, tt.info)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.warn {
				t.Errorf("warn enabled = %t, want %t", got, tt.warn)
			}
		})
	}
}

func TestLoggerBeforeInitialize(t *testing.T) {
	reset()
	before := GetLogger("capture")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug enabled before Initialize")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"capture": "debug"}})

	if GetLogger("capture") == before {
		t.Fatal("logger was not rebuilt with the configured handler chain")
	}
	// the old logger shares the level var
	if !before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("level change did not reach the earlier logger")
	}
}

func TestSetLevel(t *testing.T) {
	reset()
	Initialize(Config{Level: "info"})
	l := GetLogger("simbus")
	if !SetLevel("simbus", "debug") {
		t.Fatal("SetLevel failed")
	}
	if !l.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug not enabled after SetLevel")
	}
	if SetLevel("simbus", "loud") {
		t.Fatal("accepted an unknown level")
	}
	if SetLevel("nobody", "debug") {
		t.Fatal("accepted an unknown module")
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(Entry{Message: string(rune('a' + i))})
	}
	if h.Len() != 3 {
		t.Fatalf("len %d", h.Len())
	}
	var got []string
	for _, e := range h.Last(0) {
		got = append(got, e.Message)
	}
	if strings.Join(got, "") != "cde" {
		t.Fatalf("entries %v", got)
	}
	if last := h.Last(2); len(last) != 2 || last[0].Message != "d" {
		t.Fatalf("last two %v", last)
	}
	if NewHistory(0).Last(5) != nil {
		t.Fatal("empty history returned entries")
	}
}

func TestHistoryHandler(t *testing.T) {
	h := NewHistory(10)
	lv := &slog.LevelVar{}
	log := slog.New(NewHistoryHandler(h, lv)).With("module", "capture")

	log.Debug("hidden")
	log.Info("frame", "seq", 7, "err", errors.New("late"), slog.Group("geom", "w", 640))
	lv.Set(slog.LevelDebug)
	log.Debug("shown")

	entries := h.Last(0)
	if len(entries) != 2 {
		t.Fatalf("%d entries", len(entries))
	}
	e := entries[0]
	if e.Module != "capture" || e.Level != "info" || e.Message != "frame" {
		t.Fatalf("entry %+v", e)
	}
	if e.Attrs["seq"] != int64(7) || e.Attrs["err"] != "late" || e.Attrs["geom.w"] != int64(640) {
		t.Fatalf("attrs %v", e.Attrs)
	}
	if entries[1].Message != "shown" {
		t.Fatalf("level var change ignored: %+v", entries[1])
	}
}

func TestEntryString(t *testing.T) {
	e := Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   "warn",
		Module:  "iso",
		Message: "overrun",
		Attrs:   map[string]any{"b": 2, "a": 1},
	}
	want := "2024-01-02T03:04:05Z WARN  [iso] overrun a=1 b=2"
	if got := e.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFanout(t *testing.T) {
	var buf bytes.Buffer
	debug := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	log := slog.New(NewFanout(debug, info)).WithGroup("g").With("module", "t")

	log.Debug("once")
	log.Info("twice")
	out := buf.String()
	if strings.Count(out, "once") != 1 || strings.Count(out, "twice") != 2 {
		t.Fatalf("output %q", out)
	}
	if !strings.Contains(out, "g.module=t") {
		t.Fatalf("group not applied: %q", out)
	}
}

func TestJournalKey(t *testing.T) {
	if got := journalKey([]string{"camera", "guid"}); got != "CAMERA_GUID" {
		t.Fatalf("got %q", got)
	}
	if got := journalKey([]string{"iso.channel"}); got != "ISO_CHANNEL" {
		t.Fatalf("got %q", got)
	}
	fields := map[string]string{}
	journalField(fields, nil, slog.Int("frames", 3))
	journalField(fields, nil, slog.Group("roi", slog.Bool("on", true)))
	if fields["FRAMES"] != "3" || fields["ROI_ON"] != "true" {
		t.Fatalf("fields %v", fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", 0, false},
		{"verbose", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseLevel(%q) = %v %t, want %v %t", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
