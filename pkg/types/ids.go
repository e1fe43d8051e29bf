// Package types holds the core data model shared across schedcore's
// managers and loops: agents, offers, resources, job executions and task
// results.
package types

import (
	"fmt"
	"strings"
)

// AgentID identifies a worker node (slave) registered with the resource
// master. Opaque from schedcore's point of view.
type AgentID string

// OfferID identifies a single resource offer. Opaque.
type OfferID string

// FrameworkID identifies this scheduler's registration with the resource
// master.
type FrameworkID string

// JobExeID identifies a queued or running job execution.
type JobExeID string

// TaskID identifies a single task dispatched under an offer. Every TaskID
// embeds its JobExeID; attempts are appended so a job execution's retries
// produce distinct task IDs.
type TaskID string

const taskIDSep = "_"

// NewTaskID builds a TaskID embedding jobExeID and the given attempt number.
func NewTaskID(jobExeID JobExeID, attempt int) TaskID {
	return TaskID(fmt.Sprintf("%s%s%d", jobExeID, taskIDSep, attempt))
}

// JobExeIDFromTaskID decodes the JobExeID embedded in a TaskID. This is the
// pure-function mapping required by spec.md's invariant that every task_id
// maps back to exactly one job_exe_id.
func JobExeIDFromTaskID(taskID TaskID) (JobExeID, error) {
	s := string(taskID)
	idx := strings.LastIndex(s, taskIDSep)
	if idx <= 0 || idx == len(s)-1 {
		return "", fmt.Errorf("types: task id %q does not embed a job execution id", s)
	}
	return JobExeID(s[:idx]), nil
}
