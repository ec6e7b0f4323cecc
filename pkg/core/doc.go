// Package core defines the shared language of the leapquery system.
//
// This package contains:
//   - The standard column type vocabulary every connector normalizes into
//   - Schema descriptors (Column, TableSchema)
//   - Connector configuration (ConnectorConfig)
//   - The error taxonomy (ConnectionError, ValidationError, NotFoundError, ExecutionError)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
