// Package config loads the economy balance file: policy, starting state,
// building table and day events.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/social"
)

//go:embed balance.schema.json
var schemaJSON []byte

const schemaURL = "balance.schema.json"

// Config is the balance file. Anything left out of the file keeps its
// default; a building entry replaces the whole default for that kind.
type Config struct {
	Seed      int64               `yaml:"seed"`
	Policy    Policy              `yaml:"policy"`
	Start     Start               `yaml:"start"`
	Buildings map[string]Building `yaml:"buildings"`
	Events    []Event             `yaml:"events"`
}

type Policy struct {
	FoodPerCapitaPerDay  float64 `yaml:"food_per_capita_per_day"`
	StarvationDivisor    int     `yaml:"starvation_divisor"`
	ArrivalChancePerHour float64 `yaml:"arrival_chance_per_hour"`
	ArrivalPairChance    float64 `yaml:"arrival_pair_chance"`
	HouseSettlers        int     `yaml:"house_settlers"`
	BaseMaxPopulation    int     `yaml:"base_max_population"`
	EventChance          float64 `yaml:"event_chance"`
	FortuneAmplitude     float64 `yaml:"fortune_amplitude"`
	FortuneFrequency     float64 `yaml:"fortune_frequency"`
}

type Start struct {
	Population int                `yaml:"population"`
	Resources  map[string]float64 `yaml:"resources"`
	Buildings  map[string]int     `yaml:"buildings"`
}

type Building struct {
	Cost       map[string]float64 `yaml:"cost"`
	Production map[string]float64 `yaml:"production_per_hour"`
	Housing    int                `yaml:"housing"`
}

type Event struct {
	ID          string             `yaml:"id"`
	Description string             `yaml:"description"`
	Delta       map[string]float64 `yaml:"delta"`
	Weight      *float64           `yaml:"weight"` // nil means 1
}

// Default returns the stock balance.
func Default() Config {
	p := engine.DefaultPolicy()
	cfg := Config{
		Seed: 1,
		Policy: Policy{
			FoodPerCapitaPerDay:  p.FoodPerCapitaPerDay,
			StarvationDivisor:    p.StarvationDivisor,
			ArrivalChancePerHour: p.ArrivalChancePerHour,
			ArrivalPairChance:    p.ArrivalPairChance,
			HouseSettlers:        p.HouseSettlers,
			BaseMaxPopulation:    p.BaseMaxPopulation,
			EventChance:          p.EventChance,
			FortuneAmplitude:     p.FortuneAmplitude,
			FortuneFrequency:     0.15,
		},
		Buildings: make(map[string]Building),
	}

	seed := social.DefaultSeed()
	cfg.Start = Start{
		Population: seed.Population,
		Resources:  ledgerMap(seed.Resources),
		Buildings:  make(map[string]int),
	}
	for k, n := range seed.Buildings {
		cfg.Start.Buildings[k.String()] = n
	}

	for _, d := range economy.DefaultBuildings() {
		cfg.Buildings[d.Kind.String()] = Building{
			Cost:       ledgerMap(d.Cost),
			Production: ledgerMap(d.ProductionPerHour),
			Housing:    d.Housing,
		}
	}

	for _, ev := range engine.DefaultEvents() {
		w := ev.Weight
		cfg.Events = append(cfg.Events, Event{
			ID:          ev.ID,
			Description: ev.Description,
			Delta:       ledgerMap(ev.Delta),
			Weight:      &w,
		})
	}
	return cfg
}

// Load reads a balance file over the defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw YAML against the balance schema and decodes it over
// the defaults.
func Parse(raw []byte) (Config, error) {
	if err := validate(raw); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("balance: %w", err)
	}
	if _, err := cfg.Catalog(); err != nil {
		return Config{}, err
	}
	if err := cfg.EnginePolicy().Validate(); err != nil {
		return Config{}, fmt.Errorf("policy: %w", err)
	}
	return cfg, nil
}

func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("balance: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("balance schema: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("balance schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("balance schema: %w", err)
	}
	return s, nil
}

// Catalog builds the building table. Kinds missing from the file are not
// buildable.
func (c Config) Catalog() (*economy.Catalog, error) {
	names := make([]string, 0, len(c.Buildings))
	for name := range c.Buildings {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]economy.BuildingDef, 0, len(names))
	for _, name := range names {
		b := c.Buildings[name]
		kind, err := economy.ParseBuildingKind(name)
		if err != nil {
			return nil, err
		}
		cost, err := toLedger(b.Cost)
		if err != nil {
			return nil, fmt.Errorf("building %s cost: %w", name, err)
		}
		prod, err := toLedger(b.Production)
		if err != nil {
			return nil, fmt.Errorf("building %s production: %w", name, err)
		}
		defs = append(defs, economy.BuildingDef{
			Kind:              kind,
			Cost:              cost,
			ProductionPerHour: prod,
			Housing:           b.Housing,
		})
	}
	return economy.NewCatalog(defs...)
}

// EnginePolicy returns the economy rules.
func (c Config) EnginePolicy() engine.Policy {
	return engine.Policy{
		FoodPerCapitaPerDay:  c.Policy.FoodPerCapitaPerDay,
		StarvationDivisor:    c.Policy.StarvationDivisor,
		ArrivalChancePerHour: c.Policy.ArrivalChancePerHour,
		ArrivalPairChance:    c.Policy.ArrivalPairChance,
		HouseSettlers:        c.Policy.HouseSettlers,
		BaseMaxPopulation:    c.Policy.BaseMaxPopulation,
		EventChance:          c.Policy.EventChance,
		FortuneAmplitude:     c.Policy.FortuneAmplitude,
	}
}

// EventDefs returns the day-event table.
func (c Config) EventDefs() ([]engine.EventDef, error) {
	out := make([]engine.EventDef, 0, len(c.Events))
	for _, ev := range c.Events {
		delta, err := toSignedLedger(ev.Delta)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		w := 1.0
		if ev.Weight != nil {
			w = *ev.Weight
		}
		out = append(out, engine.EventDef{ID: ev.ID, Description: ev.Description, Delta: delta, Weight: w})
	}
	return out, nil
}

// StartSeed returns the starting state for new settlements.
func (c Config) StartSeed() (social.Seed, error) {
	res, err := toLedger(c.Start.Resources)
	if err != nil {
		return social.Seed{}, fmt.Errorf("start resources: %w", err)
	}
	seed := social.Seed{
		Population: c.Start.Population,
		Resources:  res,
		Buildings:  make(map[economy.BuildingKind]int, len(c.Start.Buildings)),
	}
	for name, n := range c.Start.Buildings {
		kind, err := economy.ParseBuildingKind(name)
		if err != nil {
			return social.Seed{}, fmt.Errorf("start buildings: %w", err)
		}
		seed.Buildings[kind] = n
	}
	return seed, nil
}

// Engine assembles an engine from the whole balance file.
func (c Config) Engine() (*engine.Engine, error) {
	catalog, err := c.Catalog()
	if err != nil {
		return nil, err
	}
	e, err := engine.NewEngine(catalog, c.EnginePolicy(), c.Seed)
	if err != nil {
		return nil, err
	}
	if e.Events, err = c.EventDefs(); err != nil {
		return nil, err
	}
	if e.Start, err = c.StartSeed(); err != nil {
		return nil, err
	}
	if c.Policy.FortuneFrequency > 0 {
		e.Fortune.Frequency = c.Policy.FortuneFrequency
	}
	return e, nil
}

func ledgerMap(l economy.Ledger) map[string]float64 {
	out := make(map[string]float64, len(l))
	for r, v := range l {
		out[r.String()] = v
	}
	return out
}

func toLedger(m map[string]float64) (economy.Ledger, error) {
	l, err := toSignedLedger(m)
	if err != nil {
		return nil, err
	}
	for r, v := range l {
		if v < 0 {
			return nil, fmt.Errorf("%s: %w", r, economy.ErrInvalidAmount)
		}
	}
	return l, nil
}

func toSignedLedger(m map[string]float64) (economy.Ledger, error) {
	l := economy.NewLedger()
	for name, v := range m {
		r, err := economy.ParseResource(name)
		if err != nil {
			return nil, err
		}
		l[r] = v
	}
	return l, nil
}
