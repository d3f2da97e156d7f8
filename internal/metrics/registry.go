package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace prefixes every metric registered in this package, e.g.
// spdm_handshakes_initiated_total.
const namespace = "spdm"

// Registry is the process-wide Prometheus registry every collector in this
// package registers against via promauto.With(Registry). Kept distinct from
// prometheus.DefaultRegisterer so a responder can be embedded in a larger
// process without colliding with that process's own metric names.
var Registry = prometheus.NewRegistry()
