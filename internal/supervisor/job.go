package supervisor

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/observability"
)

// State is a process job lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
	StateError     State = "error"
	StateDisabled  State = "disabled"
)

var progressPattern = regexp.MustCompile(`progress=(\d+)%`)

// Job supervises one external process under a stable key. All state is
// guarded by mu; the waiter goroutine performs the terminal transition.
type Job struct {
	mu sync.Mutex

	key           string
	state         State
	invocationID  string
	cmd           *exec.Cmd
	progress      int
	progressFile  string
	logPath       string
	logFile       *os.File
	logLines      []string
	stopRequested bool
	startedAt     time.Time
	finishedAt    time.Time
	lastError     string
	done          chan struct{}
}

// Status is a point-in-time snapshot of a job.
type Status struct {
	Key          string    `json:"key"`
	State        State     `json:"state"`
	InvocationID string    `json:"invocation_id,omitempty"`
	PID          int       `json:"pid,omitempty"`
	Progress     int       `json:"progress"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	Error        string    `json:"error,omitempty"`
	Log          []string  `json:"log,omitempty"`
}

func newJob(key string) *Job {
	return &Job{key: key, state: StateIdle}
}

// transition moves the job to next, recording the metric. Callers hold mu.
func (j *Job) transition(next State) {
	j.state = next
	observability.SupervisorTransitions.WithLabelValues(string(next)).Inc()
}

// appendLine records a tagged output line and scans it for progress. The
// in-memory log holds every line of the invocation; lines are never
// evicted, so repeated polls of the snapshot see a strictly growing log.
// Callers hold mu.
func (j *Job) appendLine(line string) {
	j.logLines = append(j.logLines, line)
	if j.logFile != nil {
		j.logFile.WriteString(line + "\n")
	}
	if m := progressPattern.FindStringSubmatch(line); m != nil {
		if p, err := strconv.Atoi(m[1]); err == nil && p >= 0 && p <= 100 && p > j.progress {
			j.progress = p
		}
	}
}

// consume tags and records every line of one output stream until EOF. A
// scan failure, such as a line exceeding the buffer, ends the stream early;
// the error is recorded in the job log so the truncation is visible.
func (j *Job) consume(tag string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		j.mu.Lock()
		j.appendLine(tag + ": " + scanner.Text())
		j.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		j.mu.Lock()
		j.appendLine("SUPERVISOR: " + tag + " stream read failed: " + err.Error())
		j.mu.Unlock()
	}
}

// sidecarProgress reads the optional progress sidecar file. Callers hold mu.
func (j *Job) sidecarProgress() int {
	if j.progressFile == "" {
		return 0
	}
	data, err := os.ReadFile(j.progressFile)
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || p < 0 || p > 100 {
		return 0
	}
	return p
}

// openAppend opens (creating parent directories) the per-key log file.
func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "create log directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "open process log", err)
	}
	return f, nil
}

// snapshot builds a Status.
func (j *Job) snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

// snapshotLocked builds a Status. Callers hold mu.
func (j *Job) snapshotLocked() Status {
	if p := j.sidecarProgress(); p > j.progress {
		j.progress = p
	}
	st := Status{
		Key:          j.key,
		State:        j.state,
		InvocationID: j.invocationID,
		Progress:     j.progress,
		StartedAt:    j.startedAt,
		FinishedAt:   j.finishedAt,
		Error:        j.lastError,
	}
	if j.cmd != nil && j.cmd.Process != nil {
		switch j.state {
		case StateRunning, StatePaused, StateStopping, StateStarting:
			st.PID = j.cmd.Process.Pid
		}
	}
	st.Log = append(st.Log, j.logLines...)
	return st
}
