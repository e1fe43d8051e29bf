package reconcile

import (
	"testing"

	"github.com/cuemby/schedcore/pkg/driver"
	"github.com/cuemby/schedcore/pkg/driver/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedHandle struct{ d driver.Driver }

func (h *fixedHandle) Current() driver.Driver { return h.d }

func TestCycleSendsEmptyStatusPerReconciledTask(t *testing.T) {
	set := NewSet()
	set.Add("t1")
	set.Add("t2")

	fd := fake.New()
	loop := NewLoop(set, &fixedHandle{d: fd}, 0)
	loop.cycle()

	require.Len(t, fd.Reconciles, 1)
	assert.Len(t, fd.Reconciles[0], 2)
}

func TestCycleNoopWhenSetEmpty(t *testing.T) {
	set := NewSet()
	fd := fake.New()
	loop := NewLoop(set, &fixedHandle{d: fd}, 0)
	loop.cycle()

	assert.Empty(t, fd.Reconciles)
}

func TestCycleSkipsWhenNoDriver(t *testing.T) {
	set := NewSet()
	set.Add("t1")
	loop := NewLoop(set, &fixedHandle{d: nil}, 0)
	loop.cycle()
}
