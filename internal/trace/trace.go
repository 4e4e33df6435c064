// Package trace is a flight recorder for publish runs. Each run writes one
// JSONL file of timestamped events; old traces rotate out so the directory
// stays bounded. Traces exist to reconstruct what the browser was asked to
// do when an outcome needs explaining after the fact.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MaxRotatedFiles is how many run traces are kept, newest first.
const MaxRotatedFiles = 5

// Event is one record in a run trace.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Event types recorded by the batch driver.
const (
	EventRunStart     = "run_start"
	EventRequestStart = "request_start"
	EventOutcome      = "outcome"
	EventProgress     = "progress"
)

// Recorder writes rotating JSONL run traces. Safe for concurrent use; a
// zero-value nil Recorder is a no-op, so callers never branch on whether
// tracing is enabled.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	dir     string
}

// Start opens a new trace file under dir, rotating older traces out.
func Start(dir, runID string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	r := &Recorder{dir: dir}
	if err := r.rotate(); err != nil {
		return nil, fmt.Errorf("rotate traces: %w", err)
	}

	name := fmt.Sprintf("run_%s_%d.jsonl", runID, time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	r.file = f
	r.encoder = json.NewEncoder(f)
	r.Log(EventRunStart, "", nil)
	return r, nil
}

// Log appends one event. Best effort: trace writes never fail a publish.
func (r *Recorder) Log(eventType, requestID string, data interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		RequestID: requestID,
		Data:      data,
	})
}

// Close finishes the trace file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}

// rotate deletes the oldest traces so at most MaxRotatedFiles-1 remain
// before the new file is created.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}

	type fileAge struct {
		name string
		mod  time.Time
	}
	var traces []fileAge
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, fileAge{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool { return traces[i].mod.After(traces[j].mod) })

	for i := MaxRotatedFiles - 1; i < len(traces); i++ {
		_ = os.Remove(filepath.Join(r.dir, traces[i].name))
	}
	return nil
}
