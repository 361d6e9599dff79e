package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/repository/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testEvent(t *testing.T, seq int64) event.Event {
	t.Helper()
	evt, err := event.New(event.TypeProjectApproved, "p1", "", event.ProjectApproved{ID: "p1"}, time.Now().UTC())
	require.NoError(t, err)
	evt.Seq = seq
	return evt
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(4, nil)

	first, cancelFirst := b.Subscribe()
	defer cancelFirst()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	require.NoError(t, b.Publish(context.Background(), testEvent(t, 1)))

	for _, ch := range []<-chan event.Event{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, int64(1), got.Seq)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestBroker_FullBufferDrops(t *testing.T) {
	b := NewBroker(1, nil)
	ch, cancel := b.Subscribe()
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), testEvent(t, 1)))
	require.NoError(t, b.Publish(context.Background(), testEvent(t, 2)))

	got := <-ch
	assert.Equal(t, int64(1), got.Seq)
	assert.Empty(t, ch)

	// Later events still arrive, leaving a seq gap the subscriber can detect.
	require.NoError(t, b.Publish(context.Background(), testEvent(t, 3)))
	next := <-ch
	assert.Equal(t, int64(3), next.Seq)
	assert.Greater(t, next.Seq, got.Seq+1)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker(1, nil)
	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, b.Publish(context.Background(), testEvent(t, 1)))
}

func TestMulti_JoinsErrors(t *testing.T) {
	evt := testEvent(t, 7)
	boom := errors.New("boom")

	failing := &mocks.Publisher{}
	failing.On("Publish", mock.Anything, evt).Return(boom)
	ok := &mocks.Publisher{}
	ok.On("Publish", mock.Anything, evt).Return(nil)

	err := Multi{failing, nil, ok}.Publish(context.Background(), evt)
	require.ErrorIs(t, err, boom)

	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}
