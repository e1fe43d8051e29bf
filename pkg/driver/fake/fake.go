// Package fake provides a no-op driver.Driver used by the serve command
// for local exercising without a real resource master, and by package
// tests that need a Driver double.
package fake

import (
	"sync"

	"github.com/cuemby/schedcore/pkg/driver"
	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/types"
)

// Driver is a no-op driver.Driver: every call succeeds, with no resource
// master on the other end (LaunchTasks also logs at debug level). It
// records everything it was asked to do so tests can assert on it.
type Driver struct {
	mu sync.Mutex

	Launches   []LaunchCall
	Declines   []types.OfferID
	Kills      []types.TaskID
	Reconciles [][]driver.TaskStatus
	Aborted    bool
	Stopped    bool
}

// LaunchCall records a single LaunchTasks invocation.
type LaunchCall struct {
	OfferIDs []types.OfferID
	TaskIDs  []types.TaskID
}

// New creates a fresh fake driver.
func New() *Driver {
	return &Driver{}
}

// LaunchTasks implements driver.Driver.
func (d *Driver) LaunchTasks(offerIDs []types.OfferID, taskIDs []types.TaskID, taskInfo [][]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Launches = append(d.Launches, LaunchCall{OfferIDs: offerIDs, TaskIDs: taskIDs})
	log.Logger.Debug().Int("offers", len(offerIDs)).Int("tasks", len(taskIDs)).Msg("fake driver: launch tasks")
	return nil
}

// DeclineOffer implements driver.Driver.
func (d *Driver) DeclineOffer(offerID types.OfferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Declines = append(d.Declines, offerID)
	return nil
}

// KillTask implements driver.Driver.
func (d *Driver) KillTask(taskID types.TaskID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Kills = append(d.Kills, taskID)
	return nil
}

// ReconcileTasks implements driver.Driver.
func (d *Driver) ReconcileTasks(statuses []driver.TaskStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Reconciles = append(d.Reconciles, statuses)
	return nil
}

// Abort implements driver.Driver.
func (d *Driver) Abort() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Aborted = true
	return nil
}

// Stop implements driver.Driver.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Stopped = true
	return nil
}
