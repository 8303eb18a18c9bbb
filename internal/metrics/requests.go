// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks every request the router dispatched, by method
	// and result code (§4.6, §4.10).
	RequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "total",
			Help:      "Total number of KV requests routed, by method and outcome",
		},
		[]string{"method", "code"}, // code is "" on success, else the error code
	)

	// RequestDuration tracks end-to-end dispatch latency per method.
	RequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "duration_seconds",
			Help:      "Request dispatch duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method"},
	)

	// RateLimited counts requests rejected by the rate or byte budget.
	RateLimited = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate or byte budget",
		},
		[]string{"reason"}, // rate, bytes
	)

	// IdempotentReplays counts requests served from the idempotency cache
	// instead of being re-dispatched (§4.8).
	IdempotentReplays = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "idempotent_replays_total",
			Help:      "Total number of requests served as a byte-identical idempotent replay",
		},
	)

	// ActiveConnections tracks the number of distinct client pubkeys with
	// a live entry in the connection registry.
	ActiveConnections = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Number of client connections currently tracked by the registry",
		},
	)
)
