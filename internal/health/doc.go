// Package health defines the normalized probe result and the probe contract
// shared by every check in the battery.
//
// The core pieces are:
//   - [Result]: one probe's verdict, timing and diagnostics, with the JSON wire shape
//   - [Report]: the envelope for one full run
//   - [Probe]: a named check that always returns exactly one [Result]
//   - [Classify]: maps arbitrary error shapes onto status code, message and content
//
// Probes never return Go errors. Failures are folded into the result with
// [Result.Fail] so a run always yields one entry per registered probe.
package health
