package metrics

const (
	// common prefix for all metric names
	prefix = "idracsim_fleet_"

	// Prometheus Labels
	outcomeLabel = "outcome"
	phaseLabel   = "phase"
	kindLabel    = "kind"
	backendLabel = "backend"

	// Batch outcomes
	succeeded = "succeeded"
	failed    = "failed"
	skipped   = "skipped"
)
