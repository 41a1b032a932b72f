package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain collects lines until the channel closes or the timeout fires.
func drain(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var lines []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatalf("subscription did not close, got %v", lines)
			return nil
		}
	}
}

func TestRunLog_LateSubscriberSeesEverything(t *testing.T) {
	l := NewRunLog(nil)
	l.Append("one")
	l.Appendf("two %d", 2)
	l.Close()
	l.Append("dropped")

	assert.Equal(t, []string{"one", "two 2"}, drain(t, l.Subscribe(context.Background())))
	assert.True(t, l.Closed())
	assert.Equal(t, []string{"one", "two 2"}, l.Lines())
}

func TestRunLog_LiveSubscriber(t *testing.T) {
	l := NewRunLog(nil)
	l.Append("first")

	ch := l.Subscribe(context.Background())
	assert.Equal(t, "first", <-ch)

	go func() {
		for i := 0; i < 50; i++ {
			l.Appendf("line %d", i)
		}
		l.Close()
	}()

	rest := drain(t, ch)
	require.Len(t, rest, 50)
	assert.Equal(t, "line 0", rest[0])
	assert.Equal(t, "line 49", rest[49])
}

func TestRunLog_MultipleSubscribersSameOrder(t *testing.T) {
	l := NewRunLog(nil)
	a := l.Subscribe(context.Background())
	b := l.Subscribe(context.Background())

	for _, s := range []string{"x", "y", "z"} {
		l.Append(s)
	}
	l.Close()

	assert.Equal(t, []string{"x", "y", "z"}, drain(t, a))
	assert.Equal(t, []string{"x", "y", "z"}, drain(t, b))
}

func TestRunLog_ContextCancelClosesSubscription(t *testing.T) {
	l := NewRunLog(nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := l.Subscribe(ctx)

	cancel()
	drain(t, ch)
	assert.False(t, l.Closed(), "cancelling a reader must not close the log")
}

func TestRunLog_CloseIsIdempotent(t *testing.T) {
	l := NewRunLog(nil)
	l.Close()
	l.Close()
	assert.Empty(t, drain(t, l.Subscribe(context.Background())))
}
