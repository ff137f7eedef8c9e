package h5zarr

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseSelection parses a comma separated list of per-dimension slices
// against shape. Each slice is "start:stop", "start:", ":stop", ":" or a
// single index. Missing trailing dimensions select their full extent and
// an empty string selects the whole array.
func ParseSelection(s string, shape []uint64) ([]Range, error) {
	sel := make([]Range, len(shape))
	for d, n := range shape {
		sel[d] = Range{0, n}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return sel, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) > len(shape) {
		return nil, errors.Errorf("selection %q has %d dimensions, array has %d", s, len(parts), len(shape))
	}
	for d, part := range parts {
		part = strings.TrimSpace(part)
		lo, hi, isSlice := strings.Cut(part, ":")
		if !isSlice {
			i, err := parseIndex(lo, d)
			if err != nil {
				return nil, err
			}
			sel[d] = Range{i, i + 1}
		} else {
			if lo != "" {
				i, err := parseIndex(lo, d)
				if err != nil {
					return nil, err
				}
				sel[d].Start = i
			}
			if hi != "" {
				i, err := parseIndex(hi, d)
				if err != nil {
					return nil, err
				}
				sel[d].Stop = i
			}
		}
		if sel[d].Start > sel[d].Stop || sel[d].Stop > shape[d] {
			return nil, errors.Errorf("slice %q out of bounds for dimension %d of length %d", part, d, shape[d])
		}
	}
	return sel, nil
}

func parseIndex(s string, dim int) (uint64, error) {
	i, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "dimension %d", dim)
	}
	return i, nil
}
