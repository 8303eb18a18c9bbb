package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nostrkv/kvgate/internal/logger"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...logger.Field)             {}
func (noopLogger) Info(string, ...logger.Field)              {}
func (noopLogger) Warn(string, ...logger.Field)              {}
func (noopLogger) Error(string, ...logger.Field)             {}
func (noopLogger) Fatal(string, ...logger.Field)             {}
func (n noopLogger) WithContext(context.Context) logger.Logger { return n }
func (n noopLogger) WithFields(...logger.Field) logger.Logger  { return n }
func (noopLogger) SetLevel(logger.Level)                     {}
func (noopLogger) GetLevel() logger.Level                    { return logger.InfoLevel }

func TestFilterMatches(t *testing.T) {
	f := Filter{Kinds: []int{KindRequest}, Recipient: "abc"}

	match := &Event{Kind: KindRequest, Tags: [][]string{{"p", "abc"}}}
	assert.True(t, f.matches(match))

	wrongKind := &Event{Kind: KindResponse, Tags: [][]string{{"p", "abc"}}}
	assert.False(t, f.matches(wrongKind))

	wrongRecipient := &Event{Kind: KindRequest, Tags: [][]string{{"p", "xyz"}}}
	assert.False(t, f.matches(wrongRecipient))
}

func TestRecipientTag(t *testing.T) {
	e := &Event{Tags: [][]string{{"e", "ignored"}, {"p", "peer123"}}}
	assert.Equal(t, "peer123", e.RecipientTag())

	none := &Event{Tags: [][]string{{"e", "ignored"}}}
	assert.Equal(t, "", none.RecipientTag())
}

func TestPublishFailsWithNoRelays(t *testing.T) {
	p := NewPool(Config{}, noopLogger{})
	err := p.Publish(context.Background(), &Event{ID: "1"})
	assert.Error(t, err)
}

func TestDispatchDedupesByEventID(t *testing.T) {
	p := NewPool(Config{}, noopLogger{})
	var calls int
	p.Subscribe(Filter{Kinds: []int{KindRequest}}, func(_ context.Context, _ *Event) {
		calls++
	})

	e := &Event{ID: "dup-1", Kind: KindRequest}
	p.dispatch(context.Background(), e)
	p.dispatch(context.Background(), e)

	assert.Equal(t, 1, calls)
}

func TestReadyFalseWithNoConnections(t *testing.T) {
	p := NewPool(Config{URLs: []string{"wss://example.invalid"}}, noopLogger{})
	assert.False(t, p.Ready())
}
