// Package world provides the settlement's surroundings: a smooth, seeded
// "fortune" signal that makes some days luckier than others.
package world

import (
	"hash/fnv"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Fortune turns a day number into a slowly drifting value in [0, 1]. Nearby
// days get similar values, so good and bad stretches come in runs rather than
// flipping every day.
type Fortune struct {
	noise       opensimplex.Noise
	Frequency   float64 // noise cycles per day
	Octaves     int
	Persistence float64
}

// NewFortune creates a fortune signal from a world seed.
func NewFortune(seed int64) *Fortune {
	return &Fortune{
		noise:       opensimplex.NewNormalized(seed),
		Frequency:   0.15,
		Octaves:     3,
		Persistence: 0.5,
	}
}

// At returns the fortune of owner's settlement on day, in [0, 1].
func (f *Fortune) At(owner string, day int) float64 {
	return octaveNoise(f.noise, float64(day), laneFor(owner), f.Octaves, f.Frequency, f.Persistence)
}

// Modulate shifts base by up to ±amplitude according to the day's fortune,
// clamped to [0, 1].
func (f *Fortune) Modulate(base, amplitude float64, owner string, day int) float64 {
	if f == nil || amplitude == 0 {
		return clamp01(base)
	}
	return clamp01(base + amplitude*(2*f.At(owner, day)-1))
}

// laneFor spreads owners across the second noise axis so settlements do not
// share the same lucky days.
func laneFor(owner string) float64 {
	h := fnv.New32a()
	h.Write([]byte(owner))
	return float64(h.Sum32()%10007) * 7.31
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	if octaves < 1 {
		octaves = 1
	}
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
