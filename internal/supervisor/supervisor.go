// Package supervisor runs long-lived external processes under stable keys
// with an explicit lifecycle. Each job moves through
// idle, starting, running, and a terminal state; pause and resume are
// POSIX job control, and a requested stop always reports stopped even when
// the process happens to exit cleanly first.
package supervisor

import (
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/log"
)

// stopGracePeriod is how long Stop waits after SIGTERM before killing.
const stopGracePeriod = 5 * time.Second

// Supervisor owns the process jobs, one per key.
type Supervisor struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	store  *artifact.Store
	cfg    config.Config
	logger *log.Logger
}

// New builds a supervisor rooted at the given artifact store.
func New(store *artifact.Store, cfg config.Config) *Supervisor {
	return &Supervisor{
		jobs:   make(map[string]*Job),
		store:  store,
		cfg:    cfg,
		logger: log.DefaultLogger().With("engine", "supervisor"),
	}
}

// StartOptions configures one process invocation.
type StartOptions struct {
	// Command is the argv to spawn. Required.
	Command []string
	// Dir is the working directory; empty means the repository root.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// ProgressFile is an optional repository-relative sidecar the process
	// writes its percentage into.
	ProgressFile string
}

func (s *Supervisor) job(key string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok {
		j = newJob(key)
		s.jobs[key] = j
	}
	return j
}

// Keys returns the known job keys.
func (s *Supervisor) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.jobs))
	for k := range s.jobs {
		keys = append(keys, k)
	}
	return keys
}

// Status reports the current snapshot for a key. Unknown keys are idle.
func (s *Supervisor) Status(key string) Status {
	return s.job(key).snapshot()
}

// Progress reports the current percentage for a key.
func (s *Supervisor) Progress(key string) int {
	return s.job(key).snapshot().Progress
}

// Log returns a copy of the invocation's full log for a key.
func (s *Supervisor) Log(key string) []string {
	return s.job(key).snapshot().Log
}

// PID reports the live process id for a key, or 0.
func (s *Supervisor) PID(key string) int {
	return s.job(key).snapshot().PID
}

// Start spawns the process for a key. Starting an already live job is an
// idempotent no-op that never spawns a second process; a terminal job must
// be Reset to idle first, which is also a logged no-op until done. With
// the global kill-switch off the job reports disabled with full progress
// and neither a process nor a log file is created.
func (s *Supervisor) Start(key string, opts StartOptions) (Status, error) {
	j := s.job(key)
	j.mu.Lock()
	defer j.mu.Unlock()

	if !s.cfg.Toggles.Pipeline {
		j.transition(StateDisabled)
		j.progress = 100
		s.logger.Info("pipeline disabled, process job not started", "key", key)
		return j.snapshotLocked(), nil
	}

	switch j.state {
	case StateStarting, StateRunning, StatePaused:
		s.logger.Info("process already live, start ignored", "key", key, "state", string(j.state))
		return j.snapshotLocked(), nil
	case StateIdle:
	default:
		s.logger.Warn("start ignored, job needs reset", "key", key, "state", string(j.state))
		return j.snapshotLocked(), nil
	}
	if len(opts.Command) == 0 {
		return j.snapshotLocked(), errors.New(errors.ErrCodeProcSpawnFailed,
			"start requires a non-empty command")
	}

	logRel := "output/logs/" + key + ".log"
	logAbs, err := s.store.Resolve(logRel, "process log path")
	if err != nil {
		return j.snapshotLocked(), err
	}
	progressRel := opts.ProgressFile
	if progressRel == "" {
		progressRel = "output/logs/" + key + ".progress"
	}
	progressAbs, err := s.store.Resolve(progressRel, "progress sidecar path")
	if err != nil {
		return j.snapshotLocked(), err
	}
	dir := s.store.Root()
	if opts.Dir != "" {
		dir, err = s.store.Resolve(opts.Dir, "process working directory")
		if err != nil {
			return j.snapshotLocked(), err
		}
	}

	j.transition(StateStarting)
	j.invocationID = uuid.New().String()
	j.progress = 0
	j.progressFile = progressAbs
	j.logLines = nil
	j.stopRequested = false
	j.lastError = ""
	j.startedAt = time.Now().UTC()
	j.finishedAt = time.Time{}
	j.done = make(chan struct{})

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = sysProcAttr()
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		j.transition(StateError)
		return j.snapshotLocked(), errors.Wrap(errors.ErrCodeProcSpawnFailed, "attach stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		j.transition(StateError)
		return j.snapshotLocked(), errors.Wrap(errors.ErrCodeProcSpawnFailed, "attach stderr", err)
	}

	logFile, err := openAppend(logAbs)
	if err != nil {
		j.transition(StateError)
		return j.snapshotLocked(), err
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		j.transition(StateError)
		j.lastError = err.Error()
		return j.snapshotLocked(), errors.Wrap(errors.ErrCodeProcSpawnFailed,
			"spawn process for key "+key, err)
	}

	j.cmd = cmd
	j.logPath = logAbs
	j.logFile = logFile
	j.transition(StateRunning)
	s.logger.Info("process started", "key", key,
		"invocation_id", j.invocationID, "pid", cmd.Process.Pid)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); j.consume("STDOUT", stdout) }()
	go func() { defer readers.Done(); j.consume("STDERR", stderr) }()
	go s.wait(j, cmd, &readers)

	return j.snapshotLocked(), nil
}

// wait blocks on the process and performs the terminal transition. Both
// stream readers drain first, so the log tail is complete by the time the
// job turns terminal. A stop request takes precedence over the exit code.
func (s *Supervisor) wait(j *Job, cmd *exec.Cmd, readers *sync.WaitGroup) {
	readers.Wait()
	err := cmd.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishedAt = time.Now().UTC()
	if j.logFile != nil {
		j.logFile.Close()
		j.logFile = nil
	}
	switch {
	case j.stopRequested:
		j.transition(StateStopped)
	case err != nil:
		j.transition(StateError)
		j.lastError = err.Error()
	default:
		j.transition(StateCompleted)
		j.progress = 100
	}
	close(j.done)
	s.logger.Info("process finished", "key", j.key,
		"invocation_id", j.invocationID, "state", string(j.state))
}

// Wait blocks until the job reaches a terminal state. Jobs that never
// started return immediately.
func (s *Supervisor) Wait(key string) Status {
	j := s.job(key)
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if done != nil {
		<-done
	}
	return j.snapshot()
}

// Stop requests termination of a starting, running, or paused job and
// waits for the process to exit. The resulting state is always stopped,
// even when signaling fails or the process exits cleanly underneath the
// request. Stopping a job that is not live is a logged no-op.
func (s *Supervisor) Stop(key string) (Status, error) {
	j := s.job(key)
	j.mu.Lock()
	switch j.state {
	case StateStarting, StateRunning, StatePaused:
	default:
		defer j.mu.Unlock()
		s.logger.Warn("stop ignored, job not live", "key", key, "state", string(j.state))
		return j.snapshotLocked(), nil
	}
	j.stopRequested = true
	paused := j.state == StatePaused
	j.transition(StateStopping)
	proc := j.cmd.Process
	done := j.done
	j.mu.Unlock()

	if paused {
		// A stopped process cannot handle termination until it is resumed.
		resumeProcess(proc)
	}
	if err := terminateProcess(proc); err != nil {
		s.logger.WithError(err).Warn("graceful termination failed", "key", key)
	}
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		proc.Kill()
		<-done
	}
	return j.snapshot(), nil
}

// Pause suspends a running job. Signal failures are recorded in the job
// log and leave the state unchanged; only a missing platform capability is
// surfaced as an error.
func (s *Supervisor) Pause(key string) (Status, error) {
	j := s.job(key)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		s.logger.Warn("pause ignored", "key", key, "state", string(j.state))
		return j.snapshotLocked(), nil
	}
	if err := pauseProcess(j.cmd.Process); err != nil {
		if errors.HasCode(err, errors.ErrCodeProcNotSupported) {
			return j.snapshotLocked(), err
		}
		j.appendLine("SUPERVISOR: pause failed: " + err.Error())
		return j.snapshotLocked(), nil
	}
	j.transition(StatePaused)
	s.logger.Info("process paused", "key", key, "invocation_id", j.invocationID)
	return j.snapshotLocked(), nil
}

// Resume continues a paused job. Failure handling mirrors Pause.
func (s *Supervisor) Resume(key string) (Status, error) {
	j := s.job(key)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePaused {
		s.logger.Warn("resume ignored", "key", key, "state", string(j.state))
		return j.snapshotLocked(), nil
	}
	if err := resumeProcess(j.cmd.Process); err != nil {
		if errors.HasCode(err, errors.ErrCodeProcNotSupported) {
			return j.snapshotLocked(), err
		}
		j.appendLine("SUPERVISOR: resume failed: " + err.Error())
		return j.snapshotLocked(), nil
	}
	j.transition(StateRunning)
	s.logger.Info("process resumed", "key", key, "invocation_id", j.invocationID)
	return j.snapshotLocked(), nil
}

// Reset returns a terminal job to idle so it can start again. Resetting a
// live job is a logged no-op; stop it first.
func (s *Supervisor) Reset(key string) (Status, error) {
	j := s.job(key)
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case StateStarting, StateRunning, StatePaused, StateStopping:
		s.logger.Warn("reset ignored, job still live", "key", key, "state", string(j.state))
		return j.snapshotLocked(), nil
	}
	j.transition(StateIdle)
	j.cmd = nil
	j.invocationID = ""
	j.progress = 0
	j.progressFile = ""
	j.logLines = nil
	j.stopRequested = false
	j.lastError = ""
	j.startedAt = time.Time{}
	j.finishedAt = time.Time{}
	return j.snapshotLocked(), nil
}
