// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KeyDeliveriesTotal counts key requests by result (ok|not_found|unauthorized|error).
var KeyDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamvault_key_deliveries_total",
	Help: "Total number of HLS key requests, by result.",
}, []string{"result"})

// RecordKeyDelivery counts one key request.
func RecordKeyDelivery(result string) {
	KeyDeliveriesTotal.WithLabelValues(result).Inc()
}
