// Package ports defines the interfaces that connect the agent core to its
// infrastructure adapters.
//
// Ports are the boundaries between the batching core and the outside world.
// They state what the core needs from external systems without saying how
// those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Sink]: receives sealed payloads for transport
//   - [Input]: produces event groups for a pipeline
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The batching core (internal/batch) and the pipeline driver depend only on
// these interfaces. Adapters (internal/adapters) implement them for HTTP,
// Kafka, a local pebble spool and stdout.
package ports
