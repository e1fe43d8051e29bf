package reconcile

import (
	"testing"

	"github.com/cuemby/schedcore/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestSetAddRemoveIdempotent(t *testing.T) {
	s := NewSet()
	s.Add("t1")
	s.Add("t1")
	assert.Equal(t, 1, s.Len())

	s.Remove("t1")
	s.Remove("t1") // removing an absent id is a no-op
	assert.Equal(t, 0, s.Len())
}

func TestSetAddAllAndSnapshot(t *testing.T) {
	s := NewSet()
	s.AddAll([]types.TaskID{"t1", "t2", "t1"})
	assert.Equal(t, 2, s.Len())

	snap := s.Snapshot()
	assert.ElementsMatch(t, []types.TaskID{"t1", "t2"}, snap)
}
