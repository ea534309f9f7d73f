// Package aggregates defines the write contracts of the ingestion pipeline and the typed
// errors they fail with. Implementations live in internal/data/aggregates.
package aggregates
