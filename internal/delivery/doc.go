// Package delivery is the fired-alarm pipeline.
//
// Primitives hand every fired request to Service.Handle. The service
// suppresses duplicate firings of the same request and instant, queues the
// rest, and a supervised worker pool rate-limits delivery to the configured
// sinks. Each delivered firing is published on the event bus as
// alarm.fired and appended to a short in-memory history.
//
// When the pipeline is disabled, firings skip the queue and sinks and are
// published directly, so re-arming and one-shot disabling keep working.
package delivery
