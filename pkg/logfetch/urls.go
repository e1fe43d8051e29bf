package logfetch

import (
	"fmt"
	"net/url"

	"github.com/cuemby/schedcore/pkg/types"
)

// TaskDirectory derives the agent-local sandbox directory for a task, the Go
// equivalent of the original scheduler's get_slave_task_directory probe: the
// conventional per-task sandbox path under the agent's work directory.
func TaskDirectory(taskID types.TaskID) string {
	return fmt.Sprintf("/var/lib/mesos/sandboxes/%s", taskID)
}

// TaskLogURL builds the agent's file-download URL for one of a task's log
// files (stdout/stderr), the Go equivalent of the original scheduler's
// get_slave_task_url: given (hostname, port, task_id) it returns a URL the
// dispatcher can both record on the TaskHandle and later fetch from.
func TaskLogURL(hostname string, port int, taskID types.TaskID, filename string) string {
	dir := TaskDirectory(taskID)
	q := url.Values{"path": {dir + "/" + filename}}
	return fmt.Sprintf("http://%s:%d/files/download?%s", hostname, port, q.Encode())
}
