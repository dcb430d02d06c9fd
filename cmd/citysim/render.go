package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/social"
)

var resourceLabels = map[economy.Resource]string{
	economy.Food:  "🍞 Food",
	economy.Wood:  "🪵 Wood",
	economy.Stone: "🪨 Stone",
	economy.Gold:  "🪙 Gold",
}

var kindLabels = map[economy.BuildingKind]string{
	economy.FoodFarm:   "Food Farm",
	economy.LumberMill: "Lumber Mill",
	economy.Mine:       "Mine",
	economy.House:      "House",
}

func resourceLabel(r economy.Resource) string {
	if l, ok := resourceLabels[r]; ok {
		return l
	}
	return r.String()
}

func kindLabel(k economy.BuildingKind) string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return k.String()
}

func printView(w io.Writer, v social.View) {
	titleColor := color.New(color.FgCyan, color.Bold)
	titleColor.Fprintf(w, "\n%s · day %d\n", v.Name, v.Day)
	fmt.Fprintf(w, "   👥 Population %d/%d, eating %.0f food/day\n", v.Population, v.MaxPopulation, v.FoodPerDay)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Resource", "Stock", "Per day"}),
	)
	for _, r := range economy.Resources {
		perDay := v.ProductionDay[r]
		if r == economy.Food {
			perDay -= v.FoodPerDay
		}
		_ = table.Append([]string{resourceLabel(r), fmt.Sprintf("%d", v.Resources[r]), signed(perDay)})
	}
	_ = table.Render()

	var parts []string
	for _, k := range economy.BuildingKinds {
		if n := v.Buildings[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s ×%d", kindLabel(k), n))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	fmt.Fprintf(w, "   🏠 Buildings: %s\n", strings.Join(parts, ", "))
}

func printCatalog(w io.Writer, c *economy.Catalog) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Building", "Cost", "Produces / hour", "Housing"}),
	)
	for _, k := range c.Kinds() {
		def, err := c.Def(k)
		if err != nil {
			continue
		}
		housing := "-"
		if def.Housing > 0 {
			housing = fmt.Sprintf("+%d", def.Housing)
		}
		_ = table.Append([]string{kindLabel(k), formatLedger(def.Cost), formatLedger(def.ProductionPerHour), housing})
	}
	_ = table.Render()
}

func printCollect(w io.Writer, rep engine.CollectReport) {
	if len(rep.Produced) == 0 {
		color.New(color.FgYellow).Fprintln(w, "Nothing to collect yet.")
		return
	}
	color.New(color.FgGreen).Fprintf(w, "Collected after %.1f hours: %s\n", rep.Hours, formatLedger(rep.Produced))
}

func printShortfall(w io.Writer, kind economy.BuildingKind, e *economy.InsufficientResourcesError) {
	color.New(color.FgRed).Fprintf(w, "Cannot build a %s: need %.0f %s, have %.0f (missing %.0f).\n",
		kindLabel(kind), e.Required, e.Resource, math.Floor(e.Available), math.Ceil(e.Missing()))
}

func printDay(w io.Writer, rep engine.DayReport) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, "\n☀️  Day %d\n", rep.Day)
	switch {
	case rep.Deaths > 0:
		color.New(color.FgRed).Fprintf(w, "   Famine! %d settlers starved.\n", rep.Deaths)
	case rep.Starved:
		color.New(color.FgYellow).Fprintln(w, "   The granary is empty. Settlers go hungry.")
	}
	if rep.Arrivals > 0 {
		color.New(color.FgGreen).Fprintf(w, "   %d newcomers arrived.\n", rep.Arrivals)
	}
	if rep.Event != nil {
		color.New(color.FgYellow).Fprintf(w, "   %s (%s)\n", rep.Event.Description, formatSigned(rep.Event.Applied))
	}
	if !rep.Starved && rep.Arrivals == 0 && rep.Event == nil {
		fmt.Fprintln(w, "   A quiet day.")
	}
}

func printEvents(w io.Writer, events []engine.Event) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"At", "Owner", "Day", "Category", "Description"}),
	)
	for _, e := range events {
		_ = table.Append([]string{
			e.At.Format("2006-01-02 15:04:05"), e.OwnerID, fmt.Sprintf("%d", e.Day), e.Category, e.Description,
		})
	}
	_ = table.Render()
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `Commands:
  status            show the settlement
  collect           gather what the buildings produced
  build <kind>      food_farm, lumber_mill, mine or house
  day               skip ahead one day
  catalog           building costs and output
  quit              leave`)
}

func formatLedger(l map[economy.Resource]float64) string {
	var parts []string
	for _, r := range economy.Resources {
		if v := l[r]; v != 0 {
			parts = append(parts, fmt.Sprintf("%s %s", trim(v), r))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func formatSigned(l economy.Ledger) string {
	var parts []string
	for _, r := range economy.Resources {
		if v := l[r]; v != 0 {
			parts = append(parts, fmt.Sprintf("%s %s", signed(v), r))
		}
	}
	return strings.Join(parts, ", ")
}

func signed(v float64) string {
	if v > 0 {
		return "+" + trim(v)
	}
	return trim(v)
}

func trim(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// narrator is the play command's journal: it prints notable events as they
// happen.
type narrator struct {
	out io.Writer
}

func (n *narrator) Record(_ context.Context, events ...engine.Event) error {
	for _, e := range events {
		switch e.Category {
		case engine.CategoryFounded:
			color.New(color.FgGreen, color.Bold).Fprintf(n.out, "🏕  %s\n", e.Description)
		case engine.CategoryStarvation:
			color.New(color.FgRed).Fprintf(n.out, "⚠️  %s\n", e.Description)
		case engine.CategoryArrival:
			color.New(color.FgGreen).Fprintf(n.out, "👋 %s\n", e.Description)
		}
	}
	return nil
}
