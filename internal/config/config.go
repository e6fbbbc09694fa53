// Package config loads autocrew settings from a YAML file, AUTOCREW_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wisq/autocrew/internal/constrained"
	"github.com/wisq/autocrew/internal/opt"
	"github.com/wisq/autocrew/internal/tma"
)

// EnvPrefix prefixes environment overrides, e.g. AUTOCREW_SERVER_ADDR.
const EnvPrefix = "AUTOCREW"

type Config struct {
	DataDir string       `mapstructure:"data_dir" validate:"required"`
	Server  ServerConfig `mapstructure:"server"`
	Solver  SolverConfig `mapstructure:"solver"`
	Seed    SeedConfig   `mapstructure:"seed"`
	Settle  SettleConfig `mapstructure:"settle"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	// ResolveInterval is how often contacts with new observations are re-solved.
	ResolveInterval time.Duration `mapstructure:"resolve_interval" validate:"gt=0"`
	// Workers bounds concurrent solves.
	Workers int `mapstructure:"workers" validate:"gte=1"`
}

type SolverConfig struct {
	Enforcement         string  `mapstructure:"enforcement" validate:"oneof=linear quadratic"`
	GradientTolerance   float64 `mapstructure:"gradient_tolerance" validate:"gt=0"`
	ConstraintTolerance float64 `mapstructure:"constraint_tolerance" validate:"gt=0"`
	ParameterTolerance  float64 `mapstructure:"parameter_tolerance" validate:"gt=0"`
	ValueTolerance      float64 `mapstructure:"value_tolerance" validate:"gt=0"`
	MaxSpeed            float64 `mapstructure:"max_speed" validate:"gte=0"`
}

// SeedConfig controls the mayfly search used for cold starts.
type SeedConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Iterations int     `mapstructure:"iterations" validate:"gt=0"`
	Population int     `mapstructure:"population" validate:"gte=20"`
	RandomSeed int64   `mapstructure:"random_seed"`
	Range      float64 `mapstructure:"range" validate:"gt=0"`
	MaxSpeed   float64 `mapstructure:"max_speed" validate:"gt=0"`
}

type SettleConfig struct {
	Patience          int     `mapstructure:"patience" validate:"gte=0"`
	PositionTolerance float64 `mapstructure:"position_tolerance" validate:"gte=0"`
	CourseTolerance   float64 `mapstructure:"course_tolerance" validate:"gte=0"`
	SpeedTolerance    float64 `mapstructure:"speed_tolerance" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	solver := tma.DefaultSolverConfig()
	settle := tma.DefaultSettleConfig()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.resolve_interval", 2*time.Second)
	v.SetDefault("server.workers", 4)
	v.SetDefault("solver.enforcement", solver.Enforcement.String())
	v.SetDefault("solver.gradient_tolerance", solver.GradientTolerance)
	v.SetDefault("solver.constraint_tolerance", solver.ConstraintTolerance)
	v.SetDefault("solver.parameter_tolerance", solver.ParameterTolerance)
	v.SetDefault("solver.value_tolerance", solver.ValueTolerance)
	v.SetDefault("solver.max_speed", 0.0)
	v.SetDefault("seed.enabled", true)
	v.SetDefault("seed.iterations", 100)
	v.SetDefault("seed.population", opt.MinPopulation)
	v.SetDefault("seed.random_seed", 42)
	v.SetDefault("seed.range", solver.SeedRange)
	v.SetDefault("seed.max_speed", solver.SeedSpeed)
	v.SetDefault("settle.patience", settle.Patience)
	v.SetDefault("settle.position_tolerance", settle.PositionTolerance)
	v.SetDefault("settle.course_tolerance", settle.CourseTolerance)
	v.SetDefault("settle.speed_tolerance", settle.SpeedTolerance)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, if non-empty, on top of the defaults and environment.
func Load(path string) (*Config, error) {
	return LoadFrom(New(), path)
}

// LoadFrom reads path, if non-empty, into v and decodes the result.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its range.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SolverConfig builds the solver configuration, including the mayfly
// seeder when seeding is enabled.
func (c *Config) SolverConfig() (tma.SolverConfig, error) {
	e, err := constrained.ParseEnforcement(c.Solver.Enforcement)
	if err != nil {
		return tma.SolverConfig{}, err
	}
	sc := tma.SolverConfig{
		Enforcement:         e,
		GradientTolerance:   c.Solver.GradientTolerance,
		ConstraintTolerance: c.Solver.ConstraintTolerance,
		ParameterTolerance:  c.Solver.ParameterTolerance,
		ValueTolerance:      c.Solver.ValueTolerance,
		MaxSpeed:            c.Solver.MaxSpeed,
		SeedRange:           c.Seed.Range,
		SeedSpeed:           c.Seed.MaxSpeed,
	}
	if c.Seed.Enabled {
		sc.Seeder = opt.NewMayfly(c.Seed.Iterations, c.Seed.Population, c.Seed.RandomSeed)
	}
	return sc, nil
}

func (c *Config) SettleConfig() tma.SettleConfig {
	return tma.SettleConfig{
		Patience:          c.Settle.Patience,
		PositionTolerance: c.Settle.PositionTolerance,
		CourseTolerance:   c.Settle.CourseTolerance,
		SpeedTolerance:    c.Settle.SpeedTolerance,
	}
}
