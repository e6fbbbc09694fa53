package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wisq/autocrew/internal/constrained"
	"github.com/wisq/autocrew/internal/opt"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ResolveInterval)
	assert.Equal(t, "quadratic", cfg.Solver.Enforcement)
	assert.True(t, cfg.Seed.Enabled)

	sc, err := cfg.SolverConfig()
	require.NoError(t, err)
	assert.Equal(t, constrained.QuadraticPenalty, sc.Enforcement)
	assert.IsType(t, &opt.MayflyAdapter{}, sc.Seeder)
	assert.Equal(t, 3, cfg.SettleConfig().Patience)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autocrew.yaml")
	data := `
data_dir: /var/lib/autocrew
server:
  addr: 127.0.0.1:9000
  resolve_interval: 500ms
solver:
  enforcement: linear
  max_speed: 35
seed:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/autocrew", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.ResolveInterval)
	assert.Equal(t, 4, cfg.Server.Workers, "unset keys keep defaults")

	sc, err := cfg.SolverConfig()
	require.NoError(t, err)
	assert.Equal(t, constrained.LinearPenalty, sc.Enforcement)
	assert.Equal(t, 35.0, sc.MaxSpeed)
	assert.Nil(t, sc.Seeder)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTOCREW_SERVER_WORKERS", "9")
	t.Setenv("AUTOCREW_SOLVER_ENFORCEMENT", "linear")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Server.Workers)
	assert.Equal(t, "linear", cfg.Solver.Enforcement)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("AUTOCREW_SOLVER_ENFORCEMENT", "log-barrier")
	_, err := Load("")
	assert.ErrorContains(t, err, "Enforcement")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config: read")
}

func TestInvalidSeedPopulation(t *testing.T) {
	v := New()
	v.Set("seed.population", 5)
	_, err := LoadFrom(v, "")
	assert.ErrorContains(t, err, "Population")
}
