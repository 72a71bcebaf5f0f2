// Package params defines the parameter set of one simulation run, its
// defaults, and name-based overrides validated against a fixed schema.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	InitialPopulationSize = "initialPopulationSize"
	MaxTime               = "maxTime"
	MortalityRate         = "mortalityRate"
	FertilityRate         = "fertilityRate"
	OutputDirectory       = "outputDirectory"
	Seed                  = "seed"
)

// DefaultOutputRoot is used by Default when no root is configured.
const DefaultOutputRoot = "model_output"

var (
	ErrUnknownParameter = errors.New("unrecognised parameter name")
	ErrInvalidValue     = errors.New("invalid parameter value")
)

var names = []string{
	InitialPopulationSize,
	MaxTime,
	MortalityRate,
	FertilityRate,
	OutputDirectory,
	Seed,
}

// Params is one complete parameter set. Values are copied, never shared:
// every method returns a new Params.
type Params struct {
	InitialPopulationSize int     `json:"initialPopulationSize" yaml:"initialPopulationSize"`
	MaxTime               int     `json:"maxTime" yaml:"maxTime"`
	MortalityRate         float64 `json:"mortalityRate" yaml:"mortalityRate"`
	FertilityRate         float64 `json:"fertilityRate" yaml:"fertilityRate"`
	OutputDirectory       string  `json:"outputDirectory" yaml:"outputDirectory"`
	Seed                  *int64  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Names returns the recognised parameter names in schema order.
func Names() []string {
	return append([]string(nil), names...)
}

// IsKnown reports whether name is part of the schema.
func IsKnown(name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Default returns the default parameter set rooted at DefaultOutputRoot.
func Default() Params {
	return DefaultAt(DefaultOutputRoot)
}

// DefaultAt returns the default parameter set with its output directory
// placed under root.
func DefaultAt(root string) Params {
	return Params{
		InitialPopulationSize: 5000,
		MaxTime:               200,
		MortalityRate:         0.015,
		FertilityRate:         0.075,
		OutputDirectory:       filepath.Join(root, "default_output_directory"),
	}
}

// HighMortHighFert is the default set with raised mortality and fertility.
func HighMortHighFert() Params {
	p := Default()
	p.MortalityRate = 0.03
	p.FertilityRate = 0.15
	return p
}

// OverrideDefaults applies overrides to Default.
func OverrideDefaults(overrides map[string]any) (Params, error) {
	return Default().Override(overrides)
}

func (p Params) Clone() Params {
	out := p
	if p.Seed != nil {
		seed := *p.Seed
		out.Seed = &seed
	}
	return out
}

func (p Params) WithSeed(seed int64) Params {
	out := p.Clone()
	out.Seed = &seed
	return out
}

func (p Params) WithOutputDirectory(dir string) Params {
	out := p.Clone()
	out.OutputDirectory = dir
	return out
}

// Override applies every override after checking that all names are known.
// Unknown names are reported together and nothing is applied.
func (p Params) Override(overrides map[string]any) (Params, error) {
	var unknown []string
	for name := range overrides {
		if !IsKnown(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Params{}, fmt.Errorf("%w(s): %s", ErrUnknownParameter, strings.Join(unknown, ", "))
	}

	keys := make([]string, 0, len(overrides))
	for name := range overrides {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	out := p.Clone()
	for _, name := range keys {
		next, err := out.With(name, overrides[name])
		if err != nil {
			return Params{}, err
		}
		out = next
	}
	return out, nil
}

// With returns a copy of p with a single parameter replaced.
func (p Params) With(name string, value any) (Params, error) {
	out := p.Clone()
	switch name {
	case InitialPopulationSize:
		v, err := asInt(name, value)
		if err != nil {
			return Params{}, err
		}
		out.InitialPopulationSize = v
	case MaxTime:
		v, err := asInt(name, value)
		if err != nil {
			return Params{}, err
		}
		out.MaxTime = v
	case MortalityRate:
		v, err := asFloat(name, value)
		if err != nil {
			return Params{}, err
		}
		out.MortalityRate = v
	case FertilityRate:
		v, err := asFloat(name, value)
		if err != nil {
			return Params{}, err
		}
		out.FertilityRate = v
	case OutputDirectory:
		v, ok := value.(string)
		if !ok {
			return Params{}, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidValue, name, value)
		}
		out.OutputDirectory = v
	case Seed:
		if value == nil {
			out.Seed = nil
			return out, nil
		}
		v, err := asInt64(name, value)
		if err != nil {
			return Params{}, err
		}
		out.Seed = &v
	default:
		return Params{}, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	return out, nil
}

// Get returns the current value of a named parameter.
func (p Params) Get(name string) (any, error) {
	switch name {
	case InitialPopulationSize:
		return p.InitialPopulationSize, nil
	case MaxTime:
		return p.MaxTime, nil
	case MortalityRate:
		return p.MortalityRate, nil
	case FertilityRate:
		return p.FertilityRate, nil
	case OutputDirectory:
		return p.OutputDirectory, nil
	case Seed:
		if p.Seed == nil {
			return nil, nil
		}
		return *p.Seed, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
}

// Validate checks the configuration-error conditions that must fail before
// any run starts.
func (p Params) Validate() error {
	if p.InitialPopulationSize < 0 {
		return fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalidValue, InitialPopulationSize, p.InitialPopulationSize)
	}
	if p.MaxTime < 0 {
		return fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalidValue, MaxTime, p.MaxTime)
	}
	if err := validateRate(MortalityRate, p.MortalityRate); err != nil {
		return err
	}
	if err := validateRate(FertilityRate, p.FertilityRate); err != nil {
		return err
	}
	if strings.TrimSpace(p.OutputDirectory) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidValue, OutputDirectory)
	}
	return nil
}

func validateRate(name string, rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidValue, name, rate)
	}
	return nil
}

func asFloat(name string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be numeric, got %T", ErrInvalidValue, name, value)
	}
}

func asInt64(name string, value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidValue, name, v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidValue, name, value)
	}
}

func asInt(name string, value any) (int, error) {
	v, err := asInt64(name, value)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s out of range: %d", ErrInvalidValue, name, v)
	}
	return int(v), nil
}
