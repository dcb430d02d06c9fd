package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/engine"
)

func newPlayService(t *testing.T, out *bytes.Buffer) (*engine.Service, *engine.FakeClock) {
	t.Helper()
	color.NoColor = true
	e, err := engine.NewEngine(economy.DefaultCatalog(), engine.DefaultPolicy(), 1)
	require.NoError(t, err)
	e.Policy.ArrivalChancePerHour = 0
	e.Policy.EventChance = 0
	e.Policy.FortuneAmplitude = 0
	clock := engine.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return engine.NewService(e, nil, clock, &narrator{out: out}), clock
}

func TestPlaySession(t *testing.T) {
	var out bytes.Buffer
	svc, _ := newPlayService(t, &out)
	owner, name = "tester", "Testville"

	in := strings.NewReader("help\nbuild food farm\nbuild castle\nday\nstatus\nquit\nstatus\n")
	require.NoError(t, play(context.Background(), svc, in, &out))

	text := out.String()
	assert.Contains(t, text, "Testville was founded")
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, "Cannot build a Food Farm: need 100 wood, have 50")
	assert.Contains(t, text, "unknown building kind")
	assert.Contains(t, text, "Day 2")
	assert.Contains(t, text, "A quiet day.")
	assert.Equal(t, 3, strings.Count(text, "Testville · day"), "input after quit is never read")
}

func TestPlayEndsOnEOF(t *testing.T) {
	var out bytes.Buffer
	svc, _ := newPlayService(t, &out)
	owner, name = "eof", ""

	require.NoError(t, play(context.Background(), svc, strings.NewReader("collect\n"), &out))
	assert.Contains(t, out.String(), engine.DefaultName)
	assert.Contains(t, out.String(), "Nothing to collect yet.")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "5 food, 0.25 gold", formatLedger(economy.Ledger{economy.Food: 5, economy.Gold: 0.25}))
	assert.Equal(t, "-", formatLedger(nil))
	assert.Equal(t, "+30 food, -20 wood", formatSigned(economy.Ledger{economy.Wood: -20, economy.Food: 30}))
	assert.Equal(t, "Lumber Mill", kindLabel(economy.LumberMill))
}
