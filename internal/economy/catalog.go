package economy

import (
	"fmt"
	"math"
	"strings"
)

// BuildingKind is a constructible building type.
type BuildingKind uint8

const (
	FoodFarm BuildingKind = iota
	LumberMill
	Mine
	House
)

// BuildingKinds lists every building kind in canonical order.
var BuildingKinds = []BuildingKind{FoodFarm, LumberMill, Mine, House}

var buildingNames = [...]string{
	FoodFarm:   "food_farm",
	LumberMill: "lumber_mill",
	Mine:       "mine",
	House:      "house",
}

func (k BuildingKind) String() string {
	if int(k) < len(buildingNames) {
		return buildingNames[k]
	}
	return fmt.Sprintf("building(%d)", uint8(k))
}

// Valid reports whether k is one of the known building kinds.
func (k BuildingKind) Valid() bool {
	return int(k) < len(buildingNames)
}

// ParseBuildingKind maps a building name to its kind. Dashes and spaces are
// accepted in place of underscores.
func ParseBuildingKind(s string) (BuildingKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	for i, name := range buildingNames {
		if name == s {
			return BuildingKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBuildingKind, s)
}

func (k BuildingKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBuildingKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *BuildingKind) UnmarshalText(b []byte) error {
	v, err := ParseBuildingKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// BuildingDef describes one catalog entry.
type BuildingDef struct {
	Kind              BuildingKind `json:"kind"`
	Cost              Ledger       `json:"cost"`
	ProductionPerHour Ledger       `json:"production_per_hour"`
	Housing           int          `json:"housing"` // max population added per building
}

func (d BuildingDef) clone() BuildingDef {
	d.Cost = d.Cost.Clone()
	d.ProductionPerHour = d.ProductionPerHour.Clone()
	return d
}

// Catalog is the immutable table of building kinds. It is safe to share
// between goroutines; accessors hand out copies.
type Catalog struct {
	defs map[BuildingKind]BuildingDef
}

// NewCatalog validates defs and copies them into a catalog.
func NewCatalog(defs ...BuildingDef) (*Catalog, error) {
	c := &Catalog{defs: make(map[BuildingKind]BuildingDef, len(defs))}
	for _, d := range defs {
		if !d.Kind.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownBuildingKind, uint8(d.Kind))
		}
		if _, dup := c.defs[d.Kind]; dup {
			return nil, fmt.Errorf("duplicate catalog entry for %s", d.Kind)
		}
		if err := checkNonNegative(d.Cost); err != nil {
			return nil, fmt.Errorf("%s cost: %w", d.Kind, err)
		}
		if err := checkNonNegative(d.ProductionPerHour); err != nil {
			return nil, fmt.Errorf("%s production: %w", d.Kind, err)
		}
		if d.Housing < 0 {
			return nil, fmt.Errorf("%s housing: %w", d.Kind, ErrInvalidAmount)
		}
		if d.Cost == nil {
			d.Cost = NewLedger()
		}
		if d.ProductionPerHour == nil {
			d.ProductionPerHour = NewLedger()
		}
		c.defs[d.Kind] = d.clone()
	}
	return c, nil
}

func checkNonNegative(l Ledger) error {
	for r, v := range l {
		if !r.Valid() {
			return fmt.Errorf("unknown resource %d", uint8(r))
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidAmount
		}
	}
	return nil
}

// DefaultCatalog returns the stock building table.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultBuildings()...)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultBuildings returns the stock building definitions.
func DefaultBuildings() []BuildingDef {
	return []BuildingDef{
		{
			Kind:              FoodFarm,
			Cost:              Ledger{Wood: 100, Stone: 50},
			ProductionPerHour: Ledger{Food: 5},
		},
		{
			Kind:              LumberMill,
			Cost:              Ledger{Wood: 150, Stone: 80},
			ProductionPerHour: Ledger{Wood: 4},
		},
		{
			Kind:              Mine,
			Cost:              Ledger{Wood: 200, Stone: 100},
			ProductionPerHour: Ledger{Stone: 3, Gold: 0.25},
		},
		{
			Kind:    House,
			Cost:    Ledger{Wood: 400, Stone: 230, Food: 100},
			Housing: 5,
		},
	}
}

// Def returns a copy of the definition for kind.
func (c *Catalog) Def(kind BuildingKind) (BuildingDef, error) {
	d, ok := c.defs[kind]
	if !ok {
		return BuildingDef{}, fmt.Errorf("%w: %s", ErrUnknownBuildingKind, kind)
	}
	return d.clone(), nil
}

// CostOf returns the construction cost of kind.
func (c *Catalog) CostOf(kind BuildingKind) (Ledger, error) {
	d, err := c.Def(kind)
	if err != nil {
		return nil, err
	}
	return d.Cost, nil
}

// ProductionOf returns the hourly output of one building of kind.
func (c *Catalog) ProductionOf(kind BuildingKind) (Ledger, error) {
	d, err := c.Def(kind)
	if err != nil {
		return nil, err
	}
	return d.ProductionPerHour, nil
}

// HousingOf returns the max population one building of kind adds.
func (c *Catalog) HousingOf(kind BuildingKind) int {
	return c.defs[kind].Housing
}

// Kinds returns the catalogued kinds in canonical order.
func (c *Catalog) Kinds() []BuildingKind {
	out := make([]BuildingKind, 0, len(c.defs))
	for _, k := range BuildingKinds {
		if _, ok := c.defs[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// rate returns the hourly output of kind for r without copying.
func (c *Catalog) rate(kind BuildingKind, r Resource) float64 {
	return c.defs[kind].ProductionPerHour[r]
}

// Output returns what the given building counts produce over hours.
func (c *Catalog) Output(counts map[BuildingKind]int, hours float64) Ledger {
	out := NewLedger()
	if hours <= 0 {
		return out
	}
	for _, k := range c.Kinds() {
		n := counts[k]
		if n <= 0 {
			continue
		}
		for _, r := range Resources {
			if rate := c.rate(k, r); rate > 0 {
				out[r] += rate * float64(n) * hours
			}
		}
	}
	return out
}
