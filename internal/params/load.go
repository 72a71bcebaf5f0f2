package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a mapping of parameter overrides (YAML or JSON, chosen by
// extension) and applies it to base. Unknown names fail the load.
func LoadFile(path string, base Params) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("reading params file: %w", err)
	}
	overrides, err := decodeOverrides(filepath.Ext(path), data)
	if err != nil {
		return Params{}, fmt.Errorf("parsing params file %s: %w", path, err)
	}
	return base.Override(overrides)
}

func decodeOverrides(ext string, data []byte) (map[string]any, error) {
	overrides := map[string]any{}
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&overrides); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			return nil, err
		}
	}
	return overrides, nil
}
