// Package economy provides resource kinds, the per-settlement resource ledger,
// and the static building catalog.
package economy

import (
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// Resource is a kind of stockpiled good.
type Resource uint8

const (
	Food Resource = iota
	Wood
	Stone
	Gold
)

// Resources lists every resource in canonical order. Checks and reports that
// walk several resources use this order so results are deterministic.
var Resources = []Resource{Food, Wood, Stone, Gold}

var resourceNames = [...]string{
	Food:  "food",
	Wood:  "wood",
	Stone: "stone",
	Gold:  "gold",
}

func (r Resource) String() string {
	if int(r) < len(resourceNames) {
		return resourceNames[r]
	}
	return fmt.Sprintf("resource(%d)", uint8(r))
}

// Valid reports whether r is one of the known resources.
func (r Resource) Valid() bool {
	return int(r) < len(resourceNames)
}

// ParseResource maps a lowercase resource name to its kind.
func ParseResource(s string) (Resource, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range resourceNames {
		if name == s {
			return Resource(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource %q", s)
}

func (r Resource) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown resource %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Resource) UnmarshalText(b []byte) error {
	v, err := ParseResource(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// clamp bounds v to [lo, hi].
func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
