package social

import (
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-city/internal/economy"
)

// View is a read-only snapshot of a settlement, ready for a presentation
// layer to render. It never aliases settlement state.
type View struct {
	ID            uuid.UUID                    `json:"id"`
	OwnerID       string                       `json:"owner_id"`
	Name          string                       `json:"name"`
	Day           int                          `json:"day"`
	Population    int                          `json:"population"`
	MaxPopulation int                          `json:"max_population"`
	Resources     map[economy.Resource]int64   `json:"resources"`
	Buildings     map[economy.BuildingKind]int `json:"buildings"`
	FoodPerDay    float64                      `json:"food_per_day"`
	ProductionDay map[economy.Resource]float64 `json:"production_per_day"`
	LastTick      time.Time                    `json:"last_tick"`
}

// Snapshot builds the view of s. foodPerCapita is the daily ration per
// settler; catalog supplies production rates.
func Snapshot(s *Settlement, catalog *economy.Catalog, foodPerCapita float64) View {
	buildings := make(map[economy.BuildingKind]int, len(s.Buildings))
	for k, n := range s.Buildings {
		if n > 0 {
			buildings[k] = n
		}
	}

	daily := catalog.Output(s.Buildings, HoursPerDay)
	production := make(map[economy.Resource]float64, len(daily))
	for r, v := range daily {
		if v > 0 {
			production[r] = v
		}
	}

	return View{
		ID:            s.ID,
		OwnerID:       s.OwnerID,
		Name:          s.Name,
		Day:           s.Day,
		Population:    s.Population,
		MaxPopulation: s.MaxPopulation,
		Resources:     s.Resources.Rounded(),
		Buildings:     buildings,
		FoodPerDay:    float64(s.Population) * foodPerCapita,
		ProductionDay: production,
		LastTick:      s.LastTick,
	}
}
