package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riverrpc/river/frame"
)

func noopSink(*frame.Frame) error { return nil }

func TestOpenRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Open("s1", Unary, noopSink)
	require.NoError(t, err)

	_, err = r.Open("s1", Unary, noopSink)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestDeliverUnknownStreamIsDropped(t *testing.T) {
	r := NewRegistry()
	err := r.Deliver("missing", &frame.Frame{ID: "f1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCloseEndsQueueWithNoFurtherFrames(t *testing.T) {
	r := NewRegistry()
	s, err := r.Open("s1", Bidi, noopSink)
	require.NoError(t, err)

	require.NoError(t, r.Deliver("s1", &frame.Frame{ID: "f1", Seq: 0}))
	r.Close("s1")

	_, stillOpen := r.Get("s1")
	require.False(t, stillOpen)

	first := <-s.Inbound()
	require.Equal(t, "f1", first.ID)

	_, ok := <-s.Inbound()
	require.False(t, ok, "channel must be closed after the last delivered frame")
}

func TestCapacityByKind(t *testing.T) {
	require.Equal(t, 1, Unary.Capacity())
	require.Equal(t, 1, Upload.Capacity())
	require.Equal(t, 1024, Subscription.Capacity())
	require.Equal(t, 1024, Bidi.Capacity())
}
