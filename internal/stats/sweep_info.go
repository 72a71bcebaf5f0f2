package stats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"demosim/internal/params"
)

// SweepInfo records the swept parameter names in order and the candidate
// values of each. It encodes as a JSON object whose key order is the sweep
// order, so readers can rebuild the grid shape.
type SweepInfo struct {
	Names  []string
	Values map[string][]any
}

func NewSweepInfo(names []string, values [][]any) (SweepInfo, error) {
	if len(names) != len(values) {
		return SweepInfo{}, fmt.Errorf("sweep has %d parameter names but %d value lists", len(names), len(values))
	}
	info := SweepInfo{Names: append([]string(nil), names...), Values: make(map[string][]any, len(names))}
	for i, name := range names {
		info.Values[name] = append([]any(nil), values[i]...)
	}
	return info, info.Validate()
}

func (s SweepInfo) Validate() error {
	if len(s.Names) == 0 {
		return errors.New("sweep requires at least one parameter")
	}
	seen := make(map[string]bool, len(s.Names))
	for _, name := range s.Names {
		if seen[name] {
			return fmt.Errorf("sweep parameter %s listed twice", name)
		}
		seen[name] = true
		if len(s.Values[name]) == 0 {
			return fmt.Errorf("sweep parameter %s has no values", name)
		}
	}
	return nil
}

func (s SweepInfo) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		values := s.Values[name]
		if values == nil {
			values = []any{}
		}
		encoded, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("encode values of %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *SweepInfo) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("sweep info must be a JSON object")
	}
	out := SweepInfo{Values: map[string][]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected sweep info key %v", tok)
		}
		var raw []any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode values of %s: %w", name, err)
		}
		for i, v := range raw {
			if n, ok := v.(json.Number); ok {
				raw[i] = params.NormalizeNumber(n)
			}
		}
		if _, dup := out.Values[name]; !dup {
			out.Names = append(out.Names, name)
		}
		out.Values[name] = raw
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
