package metricmodel

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emuerrors"
)

// Baseline holds the anchor values an entity's readings drift around. It is drawn once per entity.
type Baseline struct {
	CPUTemp  float64
	Power    float64
	FanSpeed int
}

// Window is an inclusive offset range applied to a baseline value.
type Window struct {
	Min float64
	Max float64
}

// Profile sets the noise windows used for baseline anchored kinds.
type Profile struct {
	Name         string
	CPUTempNoise Window
	FanNoise     Window
	PowerNoise   Window
}

var (
	// FleetProfile is used by the fleet publisher.
	FleetProfile = Profile{
		Name:         "fleet",
		CPUTempNoise: Window{Min: -5, Max: 15},
		FanNoise:     Window{Min: -500, Max: 1000},
		PowerNoise:   Window{Min: -50, Max: 100},
	}
	// StandaloneProfile is used by the single server Redfish and SNMP responders.
	StandaloneProfile = Profile{
		Name:         "standalone",
		CPUTempNoise: Window{Min: -5, Max: 15},
		FanNoise:     Window{Min: -1000, Max: 2000},
		PowerNoise:   Window{Min: -50, Max: 150},
	}
)

// Validate returns an *emuerrors.ErrInvalidArgument naming the first inverted or NaN window.
func (p Profile) Validate() error {
	windows := []struct {
		name   string
		window Window
	}{
		{"cpuTempNoise", p.CPUTempNoise},
		{"fanNoise", p.FanNoise},
		{"powerNoise", p.PowerNoise},
	}
	for _, w := range windows {
		if math.IsNaN(w.window.Min) || math.IsNaN(w.window.Max) || w.window.Min > w.window.Max {
			return errors.WithStack(&emuerrors.ErrInvalidArgument{
				Name:    w.name,
				Value:   w.window,
				Message: "noise window minimum must not exceed its maximum",
			})
		}
	}
	return nil
}

// RandomBaseline draws a baseline for one fleet entity.
func RandomBaseline(rng *rand.Rand) Baseline {
	return Baseline{
		CPUTemp:  uniformFloat(rng, 40, 50),
		Power:    uniformFloat(rng, 200, 400),
		FanSpeed: uniformInt(rng, 2500, 4000),
	}
}

// StandaloneBaseline is the fixed baseline of the single server responders.
func StandaloneBaseline() Baseline {
	return Baseline{CPUTemp: 45, Power: 250, FanSpeed: 3000}
}

// Model generates readings using the noise windows of one profile.
// A Model holds no state between calls; all randomness comes from the rng passed to Generate.
type Model struct {
	profile Profile
}

// NewModel returns a model for profile. Every noise window must have Min <= Max.
func NewModel(profile Profile) (*Model, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Model{profile: profile}, nil
}

// MustNewModel is NewModel for profiles known to be valid, such as FleetProfile. It panics on an invalid profile.
func MustNewModel(profile Profile) *Model {
	model, err := NewModel(profile)
	if err != nil {
		panic(err)
	}
	return model
}

func (m *Model) Profile() Profile {
	return m.profile
}

// Generate draws one value of kind. rng must not be used concurrently unless it is threadsafe.
func (m *Model) Generate(kind Kind, baseline Baseline, rng *rand.Rand) (float64, error) {
	spec, ok := specs[kind]
	if !ok {
		return 0, errors.WithStack(&emuerrors.ErrInvalidArgument{
			Name:    "kind",
			Value:   kind,
			Message: "unknown metric kind",
		})
	}

	var value float64
	switch spec.rule {
	case baselineCPUTemp:
		value = clamp(baseline.CPUTemp+uniformFloat(rng, m.profile.CPUTempNoise.Min, m.profile.CPUTempNoise.Max), spec.Min, spec.Max)
	case baselineFanSpeed:
		noise := uniformInt(rng, int(m.profile.FanNoise.Min), int(m.profile.FanNoise.Max))
		value = clamp(float64(baseline.FanSpeed+noise), spec.Min, spec.Max)
	case baselinePower:
		value = clamp(baseline.Power+uniformFloat(rng, m.profile.PowerNoise.Min, m.profile.PowerNoise.Max), spec.Min, spec.Max)
	default:
		value = uniformFloat(rng, spec.DrawMin, spec.DrawMax)
	}
	value = round(value, spec.Decimals)

	if err := Validate(kind, value); err != nil {
		return 0, err
	}
	return value, nil
}

// Validate returns an *emuerrors.ErrGeneration if value lies outside the declared range of kind,
// or if kind is unknown.
func Validate(kind Kind, value float64) error {
	spec, ok := specs[kind]
	if !ok {
		return errors.WithStack(&emuerrors.ErrGeneration{Kind: string(kind), Value: value, Min: math.NaN(), Max: math.NaN()})
	}
	if math.IsNaN(value) || value < spec.Min || value > spec.Max {
		return errors.WithStack(&emuerrors.ErrGeneration{Kind: string(kind), Value: value, Min: spec.Min, Max: spec.Max})
	}
	return nil
}

func uniformFloat(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}

// uniformInt returns an integer in [min, max] inclusive.
func uniformInt(rng *rand.Rand, min, max int) int {
	return min + rng.Intn(max-min+1)
}

func clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}

func round(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
