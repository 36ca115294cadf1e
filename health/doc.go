// Package health reports whether broker connections are usable.
//
// A Checker reports a Result with one of three statuses. The reconnect
// supervisor is a Checker: connected is healthy, reconnecting is degraded,
// and idle or closed is unhealthy.
//
// An Aggregator runs several checkers concurrently under one timeout and
// folds their statuses with Overall. RegisterHandlers exposes the result on
// the usual probe paths:
//
//	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second})
//	agg.Register(supervisor)
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
package health
