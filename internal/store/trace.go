package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wisq/autocrew/internal/tma"
)

// TraceEntry records one solve of a contact as a line of trace.jsonl.
type TraceEntry struct {
	// Solve numbers the solves of a contact from 1.
	Solve        int       `json:"solve"`
	Observations int       `json:"observations"`
	Value        float64   `json:"value"`
	Iterations   int       `json:"iterations"`
	Evaluations  int       `json:"evaluations"`
	Warm         bool      `json:"warm"`
	Timestamp    time.Time `json:"timestamp"`
	// Params are the solver parameters of the solution.
	Params []float64 `json:"params,omitempty"`
	// Error is set when the solver gave up.
	Error string `json:"error,omitempty"`
}

// NewTraceEntry summarizes a solution. solveErr may be nil.
func NewTraceEntry(n int, sol tma.Solution, solveErr error) TraceEntry {
	e := TraceEntry{
		Solve:        n,
		Observations: sol.Observations,
		Value:        sol.Value,
		Iterations:   sol.Stats.Iterations,
		Evaluations:  sol.Stats.Evaluations,
		Warm:         sol.Warm,
		Timestamp:    time.Now(),
		Params:       sol.Params(),
	}
	if solveErr != nil {
		e.Error = solveErr.Error()
	}
	return e
}

// TraceWriter appends entries to a contact's trace. It buffers writes and
// is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter opens <baseDir>/contacts/<contactID>/trace.jsonl,
// truncating it unless append is set.
func NewTraceWriter(baseDir, contactID string, append bool) (*TraceWriter, error) {
	if err := checkID(contactID); err != nil {
		return nil, err
	}
	dir := contactDir(baseDir, contactID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create contact directory: %w", err)
	}

	path := filepath.Join(dir, traceFile)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 16*1024),
		path:   path,
	}, nil
}

// Write buffers one entry; it reaches the file on Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

func (tw *TraceWriter) Path() string {
	return tw.path
}

// AppendTrace writes entries to the end of a contact's trace, creating it
// if needed.
func AppendTrace(baseDir, contactID string, entries ...TraceEntry) error {
	tw, err := NewTraceWriter(baseDir, contactID, true)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := tw.Write(entry); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

// TraceReader reads a contact's trace from the start.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader returns a *NotFoundError if the contact has no trace.
func NewTraceReader(baseDir, contactID string) (*TraceReader, error) {
	if err := checkID(contactID); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(contactDir(baseDir, contactID), traceFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{ContactID: contactID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 16*1024), 1024*1024)
	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes a contact's trace. A missing trace is not an error.
func DeleteTrace(baseDir, contactID string) error {
	if err := checkID(contactID); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(contactDir(baseDir, contactID), traceFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
