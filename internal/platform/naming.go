package platform

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"demosim/internal/params"
)

const repPrefix = "rep="

// RepDir is the directory of repeat rep below base.
func RepDir(base string, rep int) string {
	return filepath.Join(base, repPrefix+strconv.Itoa(rep))
}

// ParamSet is one named combination of overrides applied to a base set.
type ParamSet struct {
	Name      string
	Overrides map[string]any
}

// ParamSetName joins name=value tokens with underscores, e.g.
// "fertilityRate=0.05_mortalityRate=0.01".
func ParamSetName(names []string, values []any) string {
	tokens := make([]string, len(names))
	for i, name := range names {
		var v any
		if i < len(values) {
			v = values[i]
		}
		tokens[i] = name + "=" + params.FormatValue(v)
	}
	return strings.Join(tokens, "_")
}

// Combinations returns the cross product of lists with the first list
// varying fastest.
func Combinations(lists [][]any) [][]any {
	if len(lists) == 0 {
		return nil
	}
	combos := [][]any{{}}
	for _, list := range lists {
		next := make([][]any, 0, len(combos)*len(list))
		for _, v := range list {
			for _, prefix := range combos {
				combo := make([]any, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, v))
			}
		}
		combos = next
	}
	return combos
}

// ExpandSweep builds one ParamSet per combination of values.
func ExpandSweep(names []string, values [][]any) ([]ParamSet, error) {
	if err := validateSweep(names, values); err != nil {
		return nil, err
	}
	combos := Combinations(values)
	sets := make([]ParamSet, 0, len(combos))
	for _, combo := range combos {
		overrides := make(map[string]any, len(names))
		for i, name := range names {
			overrides[name] = combo[i]
		}
		sets = append(sets, ParamSet{Name: ParamSetName(names, combo), Overrides: overrides})
	}
	return sets, nil
}

func validateSweep(names []string, values [][]any) error {
	if len(names) == 0 {
		return errors.New("sweep requires at least one parameter")
	}
	if len(names) != len(values) {
		return fmt.Errorf("sweep has %d parameter names but %d value lists", len(names), len(values))
	}
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if !params.IsKnown(name) {
			return fmt.Errorf("%w: %s", params.ErrUnknownParameter, name)
		}
		if name == params.OutputDirectory {
			return fmt.Errorf("%w: %s cannot be swept", params.ErrInvalidValue, name)
		}
		if seen[name] {
			return fmt.Errorf("sweep parameter %s listed twice", name)
		}
		seen[name] = true
		if len(values[i]) == 0 {
			return fmt.Errorf("%w: sweep parameter %s has no values", params.ErrInvalidValue, name)
		}
	}
	return nil
}
