package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wisq/autocrew/internal/config"
	"github.com/wisq/autocrew/internal/store"
	"github.com/wisq/autocrew/internal/tma"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	c.DataDir = t.TempDir()
	c.Seed.Enabled = false
	return c
}

func TestRunSolve(t *testing.T) {
	c := testConfig(t)
	var out bytes.Buffer

	err := runSolve(context.Background(), &out, c, solveOptions{ScenarioPath: zigZagPath, JSON: true})
	if err != nil {
		t.Fatalf("runSolve failed: %v", err)
	}

	var sol tma.Solution
	if err := json.Unmarshal(out.Bytes(), &sol); err != nil {
		t.Fatalf("Failed to decode solution: %v\n%s", err, out.String())
	}
	if sol.Observations != 5 || sol.Warm {
		t.Errorf("Expected a cold solve over 5 observations: %+v", sol)
	}
	// an unseeded cold start still recovers the scenario's truth
	if math.Hypot(sol.X, sol.Y) > 1e-2 || math.Abs(sol.Speed-5) > 1e-2 || courseError(sol.Course, 135) > 0.1 {
		t.Errorf("Expected (0, 0) at 135° and 5 kn, got %+v", sol)
	}
}

func TestRunSolveReplayAndSave(t *testing.T) {
	c := testConfig(t)
	var out bytes.Buffer

	opts := solveOptions{ScenarioPath: zigZagPath, Replay: true, Save: true, ContactID: "zigzag"}
	if err := runSolve(context.Background(), &out, c, opts); err != nil {
		t.Fatalf("runSolve failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"OBS", "Scenario: zigzag", "Error vs truth:"} {
		if !strings.Contains(text, want) {
			t.Errorf("Output missing %q:\n%s", want, text)
		}
	}

	checkpointStore, err := store.NewFSStore(c.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	cp, err := checkpointStore.LoadCheckpoint("zigzag")
	if err != nil {
		t.Fatalf("Checkpoint not saved: %v", err)
	}
	if cp.Solution.Observations != 5 {
		t.Errorf("Checkpoint covers %d observations, want 5", cp.Solution.Observations)
	}

	tr, err := store.NewTraceReader(c.DataDir, "zigzag")
	if err != nil {
		t.Fatalf("Trace not saved: %v", err)
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// one solve per prefix of two or more observations
	if len(entries) != 4 {
		t.Errorf("Expected 4 trace entries, got %d", len(entries))
	}
}

func TestRunSolveErrors(t *testing.T) {
	c := testConfig(t)

	if err := runSolve(context.Background(), &bytes.Buffer{}, c, solveOptions{ScenarioPath: "missing.yaml"}); err == nil {
		t.Error("Expected error for missing scenario")
	}

	single := filepath.Join(t.TempDir(), "single.yaml")
	body := `
name: single
observer: {start: {x: 0, y: 0}, legs: [{duration: "1:00", course: 0, speed: 5}]}
observations: [{at: "0:10", bearing: 45}]
`
	if err := os.WriteFile(single, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	for _, replay := range []bool{false, true} {
		if err := runSolve(context.Background(), &bytes.Buffer{}, c, solveOptions{ScenarioPath: single, Replay: replay}); err == nil {
			t.Errorf("replay=%v: expected error for a single observation", replay)
		}
	}
}

func TestCourseError(t *testing.T) {
	tests := []struct{ a, b, want float64 }{
		{10, 350, 20},
		{350, 10, 20},
		{135, 135, 0},
		{0, 180, 180},
	}
	for _, tt := range tests {
		if got := courseError(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("courseError(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
