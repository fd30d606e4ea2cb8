// Copyright 2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cqlcluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// clientMetrics counts what the dispatcher does. With a nil registerer
// the counters still work but are not exported anywhere.
type clientMetrics struct {
	requests   *prometheus.CounterVec
	retries    prometheus.Counter
	hostErrors prometheus.Counter
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	factory := promauto.With(reg)
	return &clientMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqlcluster",
			Name:      "requests_total",
			Help:      "Requests dispatched, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cqlcluster",
			Name:      "retries_total",
			Help:      "Retries performed on behalf of the retry policy.",
		}),
		hostErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cqlcluster",
			Name:      "host_errors_total",
			Help:      "Transport faults that advanced a request to the next host.",
		}),
	}
}

func (m *clientMetrics) observeRequest(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
}
