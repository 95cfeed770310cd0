// Package metricmodel generates bounded synthetic hardware readings for a single emulated server.
package metricmodel

import (
	"time"

	"golang.org/x/exp/slices"
)

// Kind is the canonical name of one sensor reading, e.g. "cpu1_temp".
type Kind string

const (
	CPU1Temp          Kind = "cpu1_temp"
	CPU2Temp          Kind = "cpu2_temp"
	InletTemp         Kind = "inlet_temp"
	ExhaustTemp       Kind = "exhaust_temp"
	Fan1Speed         Kind = "fan1_speed"
	Fan2Speed         Kind = "fan2_speed"
	Fan3Speed         Kind = "fan3_speed"
	PowerConsumption  Kind = "power_consumption"
	CPUUsage          Kind = "cpu_usage"
	MemoryUsage       Kind = "memory_usage"
	DiskTemp          Kind = "disk_temp"
	MemoryTemp        Kind = "memory_temp"
	NetworkThroughput Kind = "network_throughput"
)

// Category groups kinds for the MetricType tag.
type Category string

const (
	Thermal     Category = "Thermal"
	Cooling     Category = "Cooling"
	Power       Category = "Power"
	Performance Category = "Performance"
	General     Category = "General"
)

// Unit is the backend unit attached to a reading. Temperatures, fan speeds and power are reported without a
// unit and carry their physical unit by convention.
type Unit string

const (
	UnitNone    Unit = "None"
	UnitPercent Unit = "Percent"
)

type rule int

const (
	uniform rule = iota
	baselineCPUTemp
	baselineFanSpeed
	baselinePower
)

// Spec describes how a kind is generated and the range every generated value must fall in.
type Spec struct {
	Kind     Kind
	Min      float64
	Max      float64
	Unit     Unit
	Category Category
	// Number of decimal places values are rounded to.
	Decimals int
	// Bounds of the uniform draw. Only used by kinds that are not anchored to a baseline.
	DrawMin float64
	DrawMax float64
	rule    rule
}

// Baseline returns true if the kind is generated as the entity baseline plus noise.
func (s Spec) Baseline() bool {
	return s.rule != uniform
}

var specs = map[Kind]Spec{
	CPU1Temp:          {Kind: CPU1Temp, Min: 40, Max: 85, Unit: UnitNone, Category: Thermal, Decimals: 1, rule: baselineCPUTemp},
	CPU2Temp:          {Kind: CPU2Temp, Min: 40, Max: 85, Unit: UnitNone, Category: Thermal, Decimals: 1, rule: baselineCPUTemp},
	InletTemp:         {Kind: InletTemp, Min: 20, Max: 35, DrawMin: 20, DrawMax: 35, Unit: UnitNone, Category: Thermal, Decimals: 1},
	ExhaustTemp:       {Kind: ExhaustTemp, Min: 30, Max: 50, DrawMin: 30, DrawMax: 50, Unit: UnitNone, Category: Thermal, Decimals: 1},
	Fan1Speed:         {Kind: Fan1Speed, Min: 2000, Max: 8000, Unit: UnitNone, Category: Cooling, Decimals: 0, rule: baselineFanSpeed},
	Fan2Speed:         {Kind: Fan2Speed, Min: 2000, Max: 8000, Unit: UnitNone, Category: Cooling, Decimals: 0, rule: baselineFanSpeed},
	Fan3Speed:         {Kind: Fan3Speed, Min: 2000, Max: 8000, Unit: UnitNone, Category: Cooling, Decimals: 0, rule: baselineFanSpeed},
	PowerConsumption:  {Kind: PowerConsumption, Min: 200, Max: 600, Unit: UnitNone, Category: Power, Decimals: 2, rule: baselinePower},
	CPUUsage:          {Kind: CPUUsage, Min: 0, Max: 100, DrawMin: 10, DrawMax: 85, Unit: UnitPercent, Category: Performance, Decimals: 2},
	MemoryUsage:       {Kind: MemoryUsage, Min: 0, Max: 100, DrawMin: 30, DrawMax: 75, Unit: UnitPercent, Category: Performance, Decimals: 2},
	DiskTemp:          {Kind: DiskTemp, Min: 25, Max: 55, DrawMin: 25, DrawMax: 55, Unit: UnitNone, Category: Thermal, Decimals: 1},
	MemoryTemp:        {Kind: MemoryTemp, Min: 35, Max: 65, DrawMin: 35, DrawMax: 65, Unit: UnitNone, Category: Thermal, Decimals: 1},
	NetworkThroughput: {Kind: NetworkThroughput, Min: 10, Max: 1000, DrawMin: 10, DrawMax: 1000, Unit: UnitNone, Category: General, Decimals: 2},
}

// FleetKinds are the kinds every fleet entity reports on each tick, in publishing order.
var FleetKinds = []Kind{
	CPU1Temp,
	CPU2Temp,
	InletTemp,
	ExhaustTemp,
	Fan1Speed,
	Fan2Speed,
	PowerConsumption,
	CPUUsage,
	MemoryUsage,
	DiskTemp,
}

// StandaloneKinds are the kinds the single Redfish server publishes: the Redfish sensors, utilisation and every
// generator only kind.
var StandaloneKinds = []Kind{
	CPU1Temp,
	CPU2Temp,
	InletTemp,
	ExhaustTemp,
	Fan1Speed,
	Fan2Speed,
	Fan3Speed,
	PowerConsumption,
	CPUUsage,
	MemoryUsage,
	DiskTemp,
	MemoryTemp,
	NetworkThroughput,
}

// SpecFor returns the spec of kind, or false if the kind is unknown.
func SpecFor(kind Kind) (Spec, bool) {
	spec, ok := specs[kind]
	return spec, ok
}

// AllKinds returns every known kind sorted by name.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, len(specs))
	for kind := range specs {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// CategoryOf returns the category of kind. Unknown kinds are General.
func CategoryOf(kind Kind) Category {
	if spec, ok := specs[kind]; ok {
		return spec.Category
	}
	return General
}

// UnitOf returns the unit of kind. Unknown kinds have no unit.
func UnitOf(kind Kind) Unit {
	if spec, ok := specs[kind]; ok {
		return spec.Unit
	}
	return UnitNone
}

// Reading is one generated value of one kind.
type Reading struct {
	Kind  Kind
	Value float64
	Unit  Unit
	Time  time.Time
}
