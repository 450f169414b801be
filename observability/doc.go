// Package observability exports smalloc allocator metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	pc, err := observability.NewPrometheusCollector(reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a, err := smalloc.New(smalloc.WithMetricsCollector(pc))
//
// Size labels are bounded: requests up to MaxObjectSize are labeled with
// their size, larger ones with "large" and zero-size ones with "0".
package observability
