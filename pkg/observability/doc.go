/*
Package observability provides tools for monitoring a running soul.

Everything is wired through domain.LifecycleHooks: Metrics exports Prometheus
collectors for steps, decisions, branches and perceptions, and LoggingHooks
writes the same events to a structured logger. Combine them with
LifecycleHooks.Merge.
*/
package observability
