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
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeBackend struct{ ready bool }

func (f fakeBackend) IsReady(ctx context.Context) bool { return f.ready }

type fakeRelays struct{ connected, total int }

func (f fakeRelays) Counts() (int, int) { return f.connected, f.total }

func TestCheckAllHealthyWhenBothReachable(t *testing.T) {
	c := NewChecker(fakeBackend{ready: true}, fakeRelays{connected: 2, total: 2})
	status := c.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.BackendStatus.Status)
	assert.Equal(t, StatusHealthy, status.RelayStatus.Status)
}

func TestCheckAllUnhealthyWhenBackendDown(t *testing.T) {
	c := NewChecker(fakeBackend{ready: false}, fakeRelays{connected: 2, total: 2})
	status := c.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.False(t, status.BackendStatus.Connected)
	assert.NotEmpty(t, status.Errors)
}

func TestCheckAllDegradedWhenSomeRelaysDown(t *testing.T) {
	c := NewChecker(fakeBackend{ready: true}, fakeRelays{connected: 1, total: 3})
	status := c.CheckAll(context.Background())
	assert.Equal(t, StatusDegraded, status.RelayStatus.Status)
}

func TestCheckAllUnhealthyWhenNoRelaysConnected(t *testing.T) {
	c := NewChecker(fakeBackend{ready: true}, fakeRelays{connected: 0, total: 3})
	status := c.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.RelayStatus.Status)
	assert.Equal(t, StatusUnhealthy, status.Status)
}

func TestCheckSystemReportsGoroutines(t *testing.T) {
	sys := CheckSystem()
	assert.Greater(t, sys.GoRoutines, 0)
}
