// Package ratelimit throttles the on-demand run trigger.
//
// A full health-check run uploads data, writes a registry entry and hits
// every portal endpoint, so the trigger is limited process-wide rather
// than per client. The limiter is in-memory and not shared between
// instances.
package ratelimit
