// Package observability turns engine lifecycle events and orchestration
// events into Prometheus metrics and structured log records.
//
// Both are plain domain.LifecycleHooks, so they can be merged and passed to
// the engine together:
//
//	metrics, _ := observability.NewMetrics(prometheus.DefaultRegisterer)
//	hooks := metrics.Hooks().Merge(observability.LogHooks(logger))
//	engine := runtime.NewEngine(runtime.WithLifecycleHooks(hooks))
package observability
