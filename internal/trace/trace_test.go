package trace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderWritesEvents(t *testing.T) {
	dir := t.TempDir()
	r, err := Start(dir, "abc123")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Log(EventRequestStart, "req-1", map[string]string{"mode": "single"})
	r.Log(EventOutcome, "req-1", map[string]string{"kind": "success"})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("trace files = %v (err %v), want exactly one", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad trace line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (run_start + 2 logged)", len(events))
	}
	if events[0].Type != EventRunStart {
		t.Errorf("first event = %q, want %q", events[0].Type, EventRunStart)
	}
	if events[1].RequestID != "req-1" || events[1].Type != EventRequestStart {
		t.Errorf("second event = %+v", events[1])
	}
	if events[1].Timestamp.IsZero() {
		t.Error("events must carry timestamps")
	}
}

func TestRecorderRotation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < MaxRotatedFiles+3; i++ {
		r, err := Start(dir, "run")
		if err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		if err := r.Close(); err != nil {
			t.Fatal(err)
		}
		// mtime granularity; keep orderings distinct.
		time.Sleep(5 * time.Millisecond)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) > MaxRotatedFiles {
		t.Errorf("%d traces retained, want at most %d", len(files), MaxRotatedFiles)
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder
	r.Log(EventOutcome, "req", nil)
	if err := r.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestLogAfterCloseIsNoOp(t *testing.T) {
	r, err := Start(t.TempDir(), "run")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	r.Log(EventOutcome, "req", nil)
	if err := r.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}
