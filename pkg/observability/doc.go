/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured log records.

Both are plain domain.LifecycleHooks and compose with Merge:

	metrics := observability.NewMetrics()
	hooks := metrics.Hooks().Merge(observability.LoggingHooks(logger))
*/
package observability
