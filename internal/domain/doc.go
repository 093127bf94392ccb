// Package domain contains the core entities and value objects for telship.
//
// This package is the innermost layer of the agent. It has no dependencies on
// infrastructure concerns (HTTP, Kafka, disk, logging) and contains only the
// event model and the shapes handed between the batcher and the sinks.
//
// # Entities
//
//   - [Event]: a single log line, metric point, span or raw record
//   - [EventGroup]: events from one source sharing the same tags
//   - [Batch]: a sealed, immutable run of events for one group key
//   - [Payload]: one delivery to a sink, carrying one or more batches
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after sealing (a sealed Batch is owned by its receiver)
//   - Free of infrastructure dependencies
//   - Testable without mocks or external systems
package domain
