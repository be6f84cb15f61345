package seq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStampIsMonotonic(t *testing.T) {
	var m Manager
	for i := uint64(0); i < 5; i++ {
		require.Equal(t, i, m.Stamp())
	}
}

func TestObserveInOrderSequenceIsContiguous(t *testing.T) {
	var m Manager
	for i := uint64(0); i < 5; i++ {
		require.Equal(t, Accepted, m.Observe(i))
		require.Equal(t, i+1, m.CurrentAck())
	}
}

func TestObserveDuplicate(t *testing.T) {
	var m Manager
	require.Equal(t, Accepted, m.Observe(0))
	require.Equal(t, Accepted, m.Observe(1))
	require.Equal(t, Duplicate, m.Observe(0))
	require.Equal(t, Duplicate, m.Observe(1))
	// duplicates never advance expectedRecv
	require.Equal(t, uint64(2), m.CurrentAck())
}

func TestObserveGap(t *testing.T) {
	var m Manager
	require.Equal(t, Accepted, m.Observe(0))
	require.Equal(t, Gap, m.Observe(2))
	// a gap does not advance expectedRecv; the session terminates instead
	require.Equal(t, uint64(1), m.CurrentAck())
}
