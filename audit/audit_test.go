package audit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndHeadOrder(t *testing.T) {
	l := New()
	l.Append("", Record{Method: "get", Timestamp: time.Now()})
	l.Append("", Record{Method: "set", Timestamp: time.Now()})

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "set", l.records[0].Method)
}

func TestAppendTrimsAtMaxRecords(t *testing.T) {
	l := New()
	for i := 0; i < maxRecords+5; i++ {
		l.Append("", Record{Method: "get", Timestamp: time.Now()})
	}
	assert.Equal(t, maxRecords, l.Len())
}

func TestKeyHashIsShortAndStable(t *testing.T) {
	a := KeyHash("appA:user:123")
	b := KeyHash("appA:user:123")
	c := KeyHash("appA:user:124")

	assert.Len(t, a, 8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRedactClient(t *testing.T) {
	assert.Equal(t, "abcd…wxyz", RedactClient("abcd1234567890wxyz"))
	assert.Equal(t, "short", RedactClient("short"))
}

func TestWindowStatsComputesSuccessRateAndLatency(t *testing.T) {
	l := New()
	now := time.Now()
	l.Append("", Record{Method: "get", Timestamp: now, LatencyMS: 10})
	l.Append("", Record{Method: "set", Timestamp: now, LatencyMS: 20, ErrorCode: "RESTRICTED"})
	l.Append("", Record{Method: "get", Timestamp: now.Add(-time.Hour), LatencyMS: 999})

	stats := l.WindowStats(now, 60_000)
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 1, stats.CountByMethod["get"])
	assert.Equal(t, 1, stats.CountByMethod["set"])
	assert.Equal(t, 1, stats.CountByErrorCode["RESTRICTED"])
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
	assert.InDelta(t, 15.0, stats.MeanLatencyMS, 0.001)
}

func TestWindowStatsEmptyLog(t *testing.T) {
	l := New()
	stats := l.WindowStats(time.Now(), 60_000)
	assert.Equal(t, 0, stats.TotalRequests)
	assert.Equal(t, 0.0, stats.SuccessRate)
}

type fakePersister struct {
	mu    sync.Mutex
	lists map[string][][]byte
}

func newFakePersister() *fakePersister {
	return &fakePersister{lists: make(map[string][][]byte)}
}

func (f *fakePersister) ListPush(ctx context.Context, list string, record []byte, maxLen int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[list] = append([][]byte{record}, f.lists[list]...)
	if int64(len(f.lists[list])) > maxLen {
		f.lists[list] = f.lists[list][:maxLen]
	}
	return nil
}

func (f *fakePersister) get(list string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists[list]
}

func TestAppendMirrorsToBackendNamespaceList(t *testing.T) {
	l := New()
	p := newFakePersister()
	l.SetBackend(p)

	l.Append("appA", Record{Method: "get", Timestamp: time.Now()})

	require.Eventually(t, func() bool {
		return len(p.get("appA__audit")) == 1
	}, time.Second, 5*time.Millisecond)

	var got Record
	require.NoError(t, json.Unmarshal(p.get("appA__audit")[0], &got))
	assert.Equal(t, "get", got.Method)
}

func TestAppendWithoutNamespaceSkipsBackend(t *testing.T) {
	l := New()
	p := newFakePersister()
	l.SetBackend(p)

	l.Append("", Record{Method: "get", Timestamp: time.Now()})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, p.get("__audit"))
}

func TestAppendWithoutBackendDoesNotPanic(t *testing.T) {
	l := New()
	assert.NotPanics(t, func() {
		l.Append("appA", Record{Method: "get", Timestamp: time.Now()})
	})
}
