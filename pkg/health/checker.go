// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package health

import (
	"context"
	"time"
)

// Backend is the subset of kvstore.Store the checker needs.
type Backend interface {
	IsReady(ctx context.Context) bool
}

// Relays is the subset of relay.Pool the checker needs.
type Relays interface {
	Counts() (connected, total int)
}

// Checker performs health checks over the gateway's two external
// dependencies: the KV backend and the relay pool (§4.9, §4.2).
type Checker struct {
	backend Backend
	relays  Relays
}

// NewChecker creates a new health checker.
func NewChecker(backend Backend, relays Relays) *Checker {
	return &Checker{backend: backend, relays: relays}
}

// CheckAll performs all health checks.
func (c *Checker) CheckAll(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Errors:    make([]string, 0),
	}

	status.BackendStatus = c.checkBackend(ctx)
	if status.BackendStatus.Status != StatusHealthy {
		status.Status = status.BackendStatus.Status
		if status.BackendStatus.Error != "" {
			status.Errors = append(status.Errors, "Backend: "+status.BackendStatus.Error)
		}
	}

	status.RelayStatus = c.checkRelays()
	if status.RelayStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy || status.RelayStatus.Status == StatusUnhealthy {
			status.Status = status.RelayStatus.Status
		}
		if status.RelayStatus.Error != "" {
			status.Errors = append(status.Errors, "Relay: "+status.RelayStatus.Error)
		}
	}

	status.SystemStatus = CheckSystem()
	if status.SystemStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy {
			status.Status = status.SystemStatus.Status
		} else if status.SystemStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
		if status.SystemStatus.Error != "" {
			status.Errors = append(status.Errors, "System: "+status.SystemStatus.Error)
		}
	}

	return status
}

func (c *Checker) checkBackend(ctx context.Context) *BackendHealth {
	start := time.Now()
	ready := c.backend.IsReady(ctx)
	h := &BackendHealth{Connected: ready, Latency: time.Since(start).String()}
	if ready {
		h.Status = StatusHealthy
	} else {
		h.Status = StatusUnhealthy
		h.Error = "backend PING failed"
	}
	return h
}

func (c *Checker) checkRelays() *RelayHealth {
	connected, total := c.relays.Counts()
	h := &RelayHealth{ConnectedRelays: connected, TotalRelays: total}
	switch {
	case connected == 0:
		h.Status = StatusUnhealthy
		h.Error = "no relay connections established"
	case connected < total:
		h.Status = StatusDegraded
	default:
		h.Status = StatusHealthy
	}
	return h
}
