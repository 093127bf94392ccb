// Package batch decides when buffered telemetry must be flushed.
//
// A [Batcher] keeps one open batch per group key. Every batch carries a
// status ([EventStatus] or [AlignedStatus]) that an [EventStrategy] reads to
// decide, after each append and on every tick, whether the batch must be
// sealed. Four rules exist:
//
//   - hard cap: the batch reached MaxSizeBytes; sealed at once, whatever its age
//   - count: at least MinCount events
//   - size: at least MinSizeBytes
//   - time: the batch is older than Timeout, or the newest event must not
//     join an aligned batch (a log line from another minute, or a metric
//     point more than five minutes away from now)
//
// With group-level batching enabled, sealed batches are collected under a
// [GroupStatus] and a [GroupStrategy] flushes them together by size or time.
//
// Strategies never mutate a status. A status belongs to exactly one open
// batch and is reset only after the sink has returned.
package batch
