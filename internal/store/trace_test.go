package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/wisq/autocrew/internal/minimize"
	"github.com/wisq/autocrew/internal/tma"
)

func TestTraceWriteAndRead(t *testing.T) {
	tempDir := t.TempDir()

	tw, err := NewTraceWriter(tempDir, "s1", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}

	sol := tma.Solution{
		X: 1, Y: 2, Course: 90, Speed: 5, Value: 0.25,
		Stats:        minimize.Stats{Iterations: 12, Evaluations: 40},
		Observations: 3,
	}
	entries := []TraceEntry{
		NewTraceEntry(1, sol, nil),
		NewTraceEntry(2, sol, errors.New("gave up")),
	}
	for _, e := range entries {
		if err := tw.Write(e); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tr, err := NewTraceReader(tempDir, "s1")
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer tr.Close()

	got, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got[0].Solve != 1 || got[0].Iterations != 12 || got[0].Evaluations != 40 || got[0].Error != "" {
		t.Errorf("Unexpected first entry: %+v", got[0])
	}
	if got[1].Error != "gave up" {
		t.Errorf("Error not recorded: %+v", got[1])
	}
	if len(got[0].Params) != 5 || got[0].Params[0] != 1 || got[0].Params[4] != 5 {
		t.Errorf("Unexpected params: %v", got[0].Params)
	}
}

func TestTraceAppend(t *testing.T) {
	tempDir := t.TempDir()

	for round := 1; round <= 2; round++ {
		tw, err := NewTraceWriter(tempDir, "s1", true)
		if err != nil {
			t.Fatal(err)
		}
		if err := tw.Write(TraceEntry{Solve: round}); err != nil {
			t.Fatal(err)
		}
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
	}

	tr, err := NewTraceReader(tempDir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	first, err := tr.Read()
	if err != nil || first.Solve != 1 {
		t.Fatalf("First Read = %+v, %v", first, err)
	}
	second, err := tr.Read()
	if err != nil || second.Solve != 2 {
		t.Fatalf("Second Read = %+v, %v", second, err)
	}
	if _, err := tr.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}

	// truncating writer starts over
	tw, err := NewTraceWriter(tempDir, "s1", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(tw.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty trace after truncation, got %d bytes", info.Size())
	}
}

func TestTraceFlushMakesEntriesVisible(t *testing.T) {
	tempDir := t.TempDir()
	tw, err := NewTraceWriter(tempDir, "s1", false)
	if err != nil {
		t.Fatal(err)
	}
	defer tw.Close()

	if err := tw.Write(TraceEntry{Solve: 1}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	tr, err := NewTraceReader(tempDir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 flushed entry, got %d", len(entries))
	}
}

func TestTraceConcurrentWrites(t *testing.T) {
	tempDir := t.TempDir()
	tw, err := NewTraceWriter(tempDir, "s1", false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := tw.Write(TraceEntry{Solve: i, Error: fmt.Sprint(i)}); err != nil {
				t.Errorf("Write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	tr, err := NewTraceReader(tempDir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("Interleaved lines: %v", err)
	}
	if len(entries) != 50 {
		t.Errorf("Expected 50 entries, got %d", len(entries))
	}
}

func TestTraceReaderErrors(t *testing.T) {
	tempDir := t.TempDir()

	if _, err := NewTraceReader(tempDir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	tw, err := NewTraceWriter(tempDir, "s1", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tw.file.WriteString("garbage\n"); err != nil {
		t.Fatal(err)
	}
	tw.Close()

	tr, err := NewTraceReader(tempDir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	if _, err := tr.ReadAll(); err == nil {
		t.Error("Expected an unmarshal error")
	}
}

func TestDeleteTrace(t *testing.T) {
	tempDir := t.TempDir()

	if err := DeleteTrace(tempDir, "s1"); err != nil {
		t.Errorf("Deleting a missing trace should succeed: %v", err)
	}

	tw, err := NewTraceWriter(tempDir, "s1", false)
	if err != nil {
		t.Fatal(err)
	}
	tw.Close()

	if err := DeleteTrace(tempDir, "s1"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(tw.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists")
	}
}

func TestAppendTrace(t *testing.T) {
	tempDir := t.TempDir()
	sol := tma.Solution{Course: 45, Speed: 3, Observations: 2}

	if err := AppendTrace(tempDir, "s1", NewTraceEntry(1, sol, nil)); err != nil {
		t.Fatalf("AppendTrace failed: %v", err)
	}
	if err := AppendTrace(tempDir, "s1", NewTraceEntry(2, sol, nil), NewTraceEntry(3, sol, nil)); err != nil {
		t.Fatalf("AppendTrace failed: %v", err)
	}

	tr, err := NewTraceReader(tempDir, "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	got, err := tr.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Solve != 1 || got[2].Solve != 3 {
		t.Errorf("Unexpected entries: %+v", got)
	}

	if err := AppendTrace(tempDir, "../escape", NewTraceEntry(1, sol, nil)); err == nil {
		t.Error("Expected error for an invalid contact ID")
	}
}
