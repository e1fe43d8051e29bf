// Package driver defines the abstract boundary between schedcore's core and
// the resource master: the operations the core may invoke (Driver) and the
// callbacks the core must implement (Callbacks). Concrete wire bindings to
// any particular resource master are out of scope here, per spec.md §1/§6.
package driver

import "github.com/cuemby/schedcore/pkg/types"

// MasterInfo describes the resource master the Driver is currently talking
// to.
type MasterInfo struct {
	Hostname string
	Port     int
}

// TaskStatus is a single status report for a task, as delivered by the
// resource master through the StatusUpdate callback.
type TaskStatus struct {
	TaskID   types.TaskID
	AgentID  types.AgentID
	State    types.TaskState
	ExitCode *int
	When     int64 // unix nanos
}

// RawOffer is a single resource offer as delivered by the resource master,
// already projected into schedcore's ResourceOffer plus the agent's
// connection details needed for log retrieval.
type RawOffer struct {
	Offer    types.ResourceOffer
	Hostname string
	Port     int
}

// Driver is the set of operations the core may invoke on the resource
// master client. Implementations need not be safe for concurrent use beyond
// single-call atomicity (spec.md §6); schedcore never assumes more.
type Driver interface {
	LaunchTasks(offerIDs []types.OfferID, taskIDs []types.TaskID, taskInfo [][]byte) error
	DeclineOffer(offerID types.OfferID) error
	KillTask(taskID types.TaskID) error
	ReconcileTasks(statuses []TaskStatus) error
	Abort() error
	Stop() error
}

// Callbacks is the set of events the core implements in response to
// resource-master-driven activity. Exact contracts are spec.md §4.1.
type Callbacks interface {
	Registered(driver Driver, frameworkID types.FrameworkID, master MasterInfo)
	Reregistered(driver Driver, master MasterInfo)
	Disconnected(driver Driver)
	ResourceOffers(driver Driver, offers []RawOffer)
	OfferRescinded(driver Driver, offerID types.OfferID)
	StatusUpdate(driver Driver, status TaskStatus)
	FrameworkMessage(driver Driver, executorID string, agentID types.AgentID, data []byte)
	SlaveLost(driver Driver, agentID types.AgentID)
	ExecutorLost(driver Driver, executorID string, agentID types.AgentID, status int)
	Error(driver Driver, message string)
	Shutdown()
}
