// Package metrics registers the provider's Prometheus collectors and exposes
// them over HTTP via Handler. Provider op handlers record OpsTotal on every
// exit path; OpDuration, Timer and the other collectors are registered and
// exported but are not recorded by the provider's handlers.
package metrics
