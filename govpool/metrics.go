// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "govpool"

type metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	events     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations",
				Help:      "number of engine operations, by operation",
			},
			[]string{"op"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operation_failures",
				Help:      "number of failed engine operations, by operation",
			},
			[]string{"op"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events",
				Help:      "number of emitted events, by kind",
			},
			[]string{"kind"},
		),
	}

	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.operations),
		reg.Register(m.failures),
		reg.Register(m.events),
	)
	return m, errs.Err
}

func (m *metrics) observe(op string, err error) {
	m.operations.WithLabelValues(op).Inc()
	if err != nil {
		m.failures.WithLabelValues(op).Inc()
	}
}

func (m *metrics) observeEvents(evs []Event) {
	for _, ev := range evs {
		m.events.WithLabelValues(string(ev.Kind())).Inc()
	}
}
