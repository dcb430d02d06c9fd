package engine

import (
	"time"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/social"
)

// BuildReport describes a finished construction.
type BuildReport struct {
	Kind     economy.BuildingKind `json:"kind"`
	Cost     economy.Ledger       `json:"cost"`
	Housing  int                  `json:"housing"`
	Settlers int                  `json:"settlers"`
	Tick     TickReport           `json:"tick"`
}

// Build ticks s to now and then constructs one building of kind. On error the
// settlement is exactly as the tick left it: the whole cost is checked before
// anything is debited. A shortfall is reported as
// *economy.InsufficientResourcesError.
func (e *Engine) Build(s *social.Settlement, kind economy.BuildingKind, now time.Time) (BuildReport, error) {
	rep := BuildReport{Kind: kind, Tick: e.Tick(s, now)}

	def, err := e.Catalog.Def(kind)
	if err != nil {
		return rep, err
	}
	if err := s.Resources.DebitAll(def.Cost); err != nil {
		return rep, err
	}

	s.Buildings[kind]++
	rep.Cost = def.Cost

	if def.Housing > 0 {
		s.MaxPopulation += def.Housing
		rep.Housing = def.Housing
		rep.Settlers = s.Admit(e.Policy.HouseSettlers)
	}
	return rep, nil
}
