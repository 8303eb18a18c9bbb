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
	// RelayEventsReceived counts inbound relay events at the pool
	// dispatcher (relay label "pool"), by whether they were accepted into
	// the dispatch pipeline or dropped as a duplicate or by the filter
	// (§4.11).
	RelayEventsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_received_total",
			Help:      "Total number of relay events received, by relay and outcome",
		},
		[]string{"relay", "outcome"}, // accepted, duplicate, filtered
	)

	// RelayEventsPublished counts outbound response events, by relay and
	// whether the relay accepted them.
	RelayEventsPublished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_published_total",
			Help:      "Total number of response events published, by relay and outcome",
		},
		[]string{"relay", "outcome"}, // ok, error
	)

	// RelayConnected reports whether a pool connection is currently up,
	// one gauge value per relay URL.
	RelayConnected = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connected",
			Help:      "1 if the relay connection is currently established, else 0",
		},
		[]string{"relay"},
	)

	// RelayReconnects counts reconnect attempts per relay.
	RelayReconnects = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts, by relay",
		},
		[]string{"relay"},
	)
)
