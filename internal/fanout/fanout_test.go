package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidatesNames(t *testing.T) {
	_, err := New(Config{}, "postgres", "")
	assert.Error(t, err)

	_, err = New(Config{}, "postgres", "slack", "postgres")
	assert.Error(t, err)

	r, err := New(Config{}, "postgres", "slack")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"postgres", "slack"}, r.Names())
}

func TestSender_UnknownNameFailsEagerly(t *testing.T) {
	r, err := New(Config{}, "postgres")
	require.NoError(t, err)

	_, err = r.Sender("postgres", "email")
	assert.ErrorContains(t, err, "email")

	_, err = r.Receiver("email")
	assert.Error(t, err)

	s, err := r.Sender("postgres")
	require.NoError(t, err)
	assert.Panics(t, func() { s.Get("slack") })
	assert.False(t, s.Has("slack"))
}

func TestSend_Delivers(t *testing.T) {
	r, err := New(Config{Buffer: 4}, "postgres", "slack")
	require.NoError(t, err)
	s, err := r.Sender("postgres", "slack")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, "postgres", "block"))
	require.NoError(t, s.Clone().Send(ctx, "postgres", "tx"))
	require.NoError(t, s.Get("slack").Send(ctx, "alert"))

	pg, err := r.Receiver("postgres")
	require.NoError(t, err)
	assert.Equal(t, "block", <-pg)
	assert.Equal(t, "tx", <-pg)
	assert.Equal(t, 1, r.Len("slack"))
}

func TestSend_FullQueueTimesOut(t *testing.T) {
	r, err := New(Config{Buffer: 1, SendTimeout: 20 * time.Millisecond}, "postgres")
	require.NoError(t, err)
	s, err := r.Sender("postgres")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, "postgres", 1))

	start := time.Now()
	err = s.Send(ctx, "postgres", 2)
	assert.ErrorIs(t, err, types.ErrChannel)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 1, r.Len("postgres"), "second message dropped")
}

func TestSend_UnblocksWhenDrained(t *testing.T) {
	r, err := New(Config{Buffer: 1, SendTimeout: time.Second}, "postgres")
	require.NoError(t, err)
	s, err := r.Sender("postgres")
	require.NoError(t, err)
	ch, err := r.Receiver("postgres")
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "postgres", 1))
	go func() {
		time.Sleep(10 * time.Millisecond)
		<-ch
	}()
	assert.NoError(t, s.Send(context.Background(), "postgres", 2))
}

func TestSend_AfterCloseIsChannelError(t *testing.T) {
	r, err := New(Config{Buffer: 2}, "postgres")
	require.NoError(t, err)
	s, err := r.Sender("postgres")
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "postgres", "kept"))

	r.Close()
	r.Close()

	err = s.Send(context.Background(), "postgres", "late")
	assert.ErrorIs(t, err, types.ErrChannel)

	ch, err := r.Receiver("postgres")
	require.NoError(t, err)
	var got []Message
	for m := range ch {
		got = append(got, m)
	}
	assert.Equal(t, []Message{"kept"}, got)
}

func TestSend_ConcurrentProducers(t *testing.T) {
	r, err := New(Config{Buffer: 100}, "postgres")
	require.NoError(t, err)
	s, err := r.Sender("postgres")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(view *MultiSender) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, view.Send(context.Background(), "postgres", j))
			}
		}(s.Clone())
	}
	wg.Wait()
	assert.Equal(t, 100, r.Len("postgres"))
}
