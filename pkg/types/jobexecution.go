package types

import "time"

// JobExecution is the queued form of a unit of work, as handed to the
// scheduling loop by the external queue collaborator. It declares the
// resource need and the task(s) to launch; schedcore never originates one
// itself.
type JobExecution struct {
	JobExeID  JobExeID
	JobType   string
	Resources NodeResources
	// TaskInfo is opaque task-launch data (command, container image, etc.)
	// that the scheduling loop forwards to the Driver untouched.
	TaskInfo []byte
	QueuedAt time.Time
}
