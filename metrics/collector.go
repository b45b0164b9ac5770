package metrics

// Collector is what the HTTP layer records generations into and reads
// status from. Implementations must be safe for concurrent use and return
// zero values for metrics they do not have.
type Collector interface {
	// RecordGeneration adds a finished generation.
	RecordGeneration(rec GenerationRecord)

	// GetGenerationMetrics returns aggregate statistics.
	GetGenerationMetrics() GenerationMetrics

	// GetRecentGenerations returns up to limit records, newest first.
	GetRecentGenerations(limit int) []GenerationRecord

	// GetSystemStatus returns the overall service health.
	GetSystemStatus() SystemStatus
}
