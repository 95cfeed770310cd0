package metricmodel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/idracsim/internal/common/emuerrors"
)

const samples = 10_000

func TestGenerate_AlwaysWithinDeclaredRange(t *testing.T) {
	tests := map[string]struct {
		profile  Profile
		baseline func(rng *rand.Rand) Baseline
	}{
		"fleet profile with random baselines": {
			profile:  FleetProfile,
			baseline: RandomBaseline,
		},
		"standalone profile with standalone baseline": {
			profile:  StandaloneProfile,
			baseline: func(_ *rand.Rand) Baseline { return StandaloneBaseline() },
		},
		"fleet profile at lowest possible baseline": {
			profile:  FleetProfile,
			baseline: func(_ *rand.Rand) Baseline { return Baseline{CPUTemp: 40, Power: 200, FanSpeed: 2500} },
		},
		"standalone profile at highest possible baseline": {
			profile:  StandaloneProfile,
			baseline: func(_ *rand.Rand) Baseline { return Baseline{CPUTemp: 50, Power: 400, FanSpeed: 4000} },
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			model := MustNewModel(tc.profile)
			for _, kind := range AllKinds() {
				spec, ok := SpecFor(kind)
				require.True(t, ok)
				for i := 0; i < samples; i++ {
					value, err := model.Generate(kind, tc.baseline(rng), rng)
					require.NoError(t, err)
					require.GreaterOrEqual(t, value, spec.Min, "kind %s", kind)
					require.LessOrEqual(t, value, spec.Max, "kind %s", kind)
				}
			}
		})
	}
}

func TestGenerate_FanSpeedNeverBelowFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	model := MustNewModel(Profile{FanNoise: Window{Min: -1000, Max: 2000}})
	baseline := Baseline{FanSpeed: 3000}
	for i := 0; i < samples; i++ {
		value, err := model.Generate(Fan1Speed, baseline, rng)
		require.NoError(t, err)
		require.GreaterOrEqual(t, value, 2000.0)
		require.LessOrEqual(t, value, 5000.0)
	}

	// Close to the floor a large share of draws would land below it.
	lowBaseline := Baseline{FanSpeed: 2100}
	sawFloor := false
	for i := 0; i < samples; i++ {
		value, err := model.Generate(Fan1Speed, lowBaseline, rng)
		require.NoError(t, err)
		require.GreaterOrEqual(t, value, 2000.0)
		if value == 2000 {
			sawFloor = true
		}
	}
	assert.True(t, sawFloor)
}

func TestGenerate_FanSpeedIsWholeRPM(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	model := MustNewModel(FleetProfile)
	for i := 0; i < 1000; i++ {
		value, err := model.Generate(Fan2Speed, RandomBaseline(rng), rng)
		require.NoError(t, err)
		assert.Equal(t, float64(int(value)), value)
	}
}

func TestGenerate_CPUTempsAreIndependentDraws(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	model := MustNewModel(FleetProfile)
	baseline := Baseline{CPUTemp: 45, Power: 300, FanSpeed: 3000}
	differ := 0
	for i := 0; i < 100; i++ {
		cpu1, err := model.Generate(CPU1Temp, baseline, rng)
		require.NoError(t, err)
		cpu2, err := model.Generate(CPU2Temp, baseline, rng)
		require.NoError(t, err)
		if cpu1 != cpu2 {
			differ++
		}
	}
	assert.Greater(t, differ, 90)
}

func TestGenerate_SameSeedSameValues(t *testing.T) {
	model := MustNewModel(FleetProfile)
	baseline := StandaloneBaseline()
	a := rand.New(rand.NewSource(99))
	b := rand.New(rand.NewSource(99))
	for _, kind := range FleetKinds {
		va, err := model.Generate(kind, baseline, a)
		require.NoError(t, err)
		vb, err := model.Generate(kind, baseline, b)
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	}
}

func TestGenerate_UnknownKind(t *testing.T) {
	_, err := MustNewModel(FleetProfile).Generate("gpu_temp", StandaloneBaseline(), rand.New(rand.NewSource(1)))
	assert.True(t, emuerrors.IsInvalidArgument(err))
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		kind  Kind
		value float64
		valid bool
	}{
		"lower bound":           {kind: CPU1Temp, value: 40, valid: true},
		"upper bound":           {kind: CPU1Temp, value: 85, valid: true},
		"below range":           {kind: CPU1Temp, value: 39.9},
		"above range":           {kind: PowerConsumption, value: 600.01},
		"percent within range":  {kind: CPUUsage, value: 0, valid: true},
		"fan speed below floor": {kind: Fan3Speed, value: 1999},
		"unknown kind":          {kind: "gpu_temp", value: 50},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := Validate(tc.kind, tc.value)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			var genErr *emuerrors.ErrGeneration
			assert.ErrorAs(t, err, &genErr)
		})
	}
}

func TestRandomBaseline_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < samples; i++ {
		b := RandomBaseline(rng)
		require.GreaterOrEqual(t, b.CPUTemp, 40.0)
		require.Less(t, b.CPUTemp, 50.0)
		require.GreaterOrEqual(t, b.Power, 200.0)
		require.Less(t, b.Power, 400.0)
		require.GreaterOrEqual(t, b.FanSpeed, 2500)
		require.LessOrEqual(t, b.FanSpeed, 4000)
	}
}

func TestCategoryOf_IsTotal(t *testing.T) {
	expected := map[Kind]Category{
		CPU1Temp:          Thermal,
		CPU2Temp:          Thermal,
		InletTemp:         Thermal,
		ExhaustTemp:       Thermal,
		DiskTemp:          Thermal,
		MemoryTemp:        Thermal,
		Fan1Speed:         Cooling,
		Fan2Speed:         Cooling,
		Fan3Speed:         Cooling,
		PowerConsumption:  Power,
		CPUUsage:          Performance,
		MemoryUsage:       Performance,
		NetworkThroughput: General,
	}
	assert.Len(t, AllKinds(), len(expected))
	for kind, category := range expected {
		assert.Equal(t, category, CategoryOf(kind), "kind %s", kind)
	}
	assert.Equal(t, General, CategoryOf("something_else"))
}

func TestUnitOf(t *testing.T) {
	assert.Equal(t, UnitPercent, UnitOf(CPUUsage))
	assert.Equal(t, UnitPercent, UnitOf(MemoryUsage))
	assert.Equal(t, UnitNone, UnitOf(CPU1Temp))
	assert.Equal(t, UnitNone, UnitOf(PowerConsumption))
	assert.Equal(t, UnitNone, UnitOf("unknown"))
}

func TestFleetKinds(t *testing.T) {
	assert.Len(t, FleetKinds, 10)
	for _, kind := range FleetKinds {
		_, ok := SpecFor(kind)
		assert.True(t, ok, "kind %s", kind)
	}
}

func TestEveryKindIsPublished(t *testing.T) {
	published := map[Kind]bool{}
	for _, kind := range append(append([]Kind{}, FleetKinds...), StandaloneKinds...) {
		_, ok := SpecFor(kind)
		assert.True(t, ok, "kind %s", kind)
		published[kind] = true
	}
	assert.Len(t, StandaloneKinds, 13)
	for _, kind := range AllKinds() {
		assert.True(t, published[kind], "kind %s is never published", kind)
	}
}

func TestNewModel_RejectsInvertedWindows(t *testing.T) {
	tests := map[string]struct {
		profile       Profile
		expectedField string
	}{
		"cpu temp":  {profile: Profile{CPUTempNoise: Window{Min: 15, Max: -5}}, expectedField: "cpuTempNoise"},
		"fan":       {profile: Profile{FanNoise: Window{Min: 10, Max: -10}}, expectedField: "fanNoise"},
		"power":     {profile: Profile{PowerNoise: Window{Min: 1, Max: 0}}, expectedField: "powerNoise"},
		"nan bound": {profile: Profile{PowerNoise: Window{Min: math.NaN(), Max: 0}}, expectedField: "powerNoise"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			model, err := NewModel(tc.profile)
			assert.Nil(t, model)
			var argErr *emuerrors.ErrInvalidArgument
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tc.expectedField, argErr.Name)
			assert.Panics(t, func() { MustNewModel(tc.profile) })
		})
	}
}

func TestNewModel_AcceptsBuiltInProfiles(t *testing.T) {
	for _, profile := range []Profile{FleetProfile, StandaloneProfile, {}} {
		model, err := NewModel(profile)
		require.NoError(t, err)
		assert.Equal(t, profile, model.Profile())
	}
}
