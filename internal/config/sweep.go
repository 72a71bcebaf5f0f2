package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SweepFile describes a parameter sweep:
//
//	base:
//	  maxTime: 100
//	params:
//	  - name: fertilityRate
//	    values: [0.05, 0.1]
//	reps: 3
//	output: model_output/fertility
type SweepFile struct {
	// Base overrides the default parameters for every combination.
	Base   map[string]any `yaml:"base"`
	Params []SweepParam   `yaml:"params"`
	Reps   int            `yaml:"reps"`
	// Workers overrides the configured pool size when positive.
	Workers int    `yaml:"workers"`
	Output  string `yaml:"output"`
}

type SweepParam struct {
	Name   string `yaml:"name"`
	Values []any  `yaml:"values"`
}

func LoadSweepFile(path string) (*SweepFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep file: %w", err)
	}
	var sweep SweepFile
	if err := yaml.Unmarshal(data, &sweep); err != nil {
		return nil, fmt.Errorf("parsing sweep file: %w", err)
	}
	if err := sweep.Validate(); err != nil {
		return nil, fmt.Errorf("sweep file %s: %w", path, err)
	}
	return &sweep, nil
}

// Validate checks the file's shape. Parameter names and values are checked
// against the schema when the sweep is expanded.
func (s *SweepFile) Validate() error {
	if len(s.Params) == 0 {
		return errors.New("at least one swept parameter is required")
	}
	for i, p := range s.Params {
		if p.Name == "" {
			return fmt.Errorf("params[%d]: name is required", i)
		}
		if len(p.Values) == 0 {
			return fmt.Errorf("params[%d] (%s): values must not be empty", i, p.Name)
		}
	}
	if s.Reps < 0 {
		return fmt.Errorf("reps must be non-negative, got %d", s.Reps)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", s.Workers)
	}
	return nil
}

// Split returns the swept names and value lists in file order.
func (s *SweepFile) Split() ([]string, [][]any) {
	names := make([]string, len(s.Params))
	values := make([][]any, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
		values[i] = p.Values
	}
	return names, values
}
