// Package queue implements a filesystem-backed FIFO of pipeline-run
// requests. One JSON file per job; the filename carries a sortable UTC
// prefix so lexical order is FIFO order regardless of file metadata.
// Claims are atomic renames out of the pending directory, which keeps the
// at-most-once dequeue guarantee across crashed or overlapping workers.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/castline/castline/internal/errors"
)

// Job states as persisted in the job payload.
const (
	StatePending = "pending"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// JobError describes why a job failed.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is the queued pipeline-run request, schema v1.
type Job struct {
	SchemaVersion string         `json:"schema_version"`
	JobID         string         `json:"job_id"`
	CreatedAt     string         `json:"created_at"`
	ScheduledFor  string         `json:"scheduled_for"`
	PipelinePath  string         `json:"pipeline_path"`
	RunID         string         `json:"run_id"`
	Params        map[string]any `json:"params,omitempty"`
	Status        string         `json:"status"`
	Attempts      int            `json:"attempts"`
	LastError     *JobError      `json:"last_error"`
}

// Item is a queue entry together with its backing file.
type Item struct {
	Filename string
	Path     string
	// Job is nil when the payload could not be parsed; the item is still
	// claimable and is failed with a job_invalid error by the worker.
	Job   *Job
	JobID string
}

// FileQueue is a directory-backed job queue.
type FileQueue struct {
	dir     string
	pending string
	running string
	done    string
	failed  string
}

// New creates a FileQueue over the given directory. Subdirectories are
// created lazily on first write.
func New(dir string) *FileQueue {
	return &FileQueue{
		dir:     dir,
		pending: filepath.Join(dir, "pending"),
		running: filepath.Join(dir, "running"),
		done:    filepath.Join(dir, "done"),
		failed:  filepath.Join(dir, "failed"),
	}
}

// Dir returns the queue root directory.
func (q *FileQueue) Dir() string {
	return q.dir
}

func (q *FileQueue) ensureDirs() error {
	for _, d := range []string{q.pending, q.running, q.done, q.failed} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeQueueIO, "create queue directory", err)
		}
	}
	return nil
}

func writeJob(path string, job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueueIO, "marshal job", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeQueueIO, "write job", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeQueueIO, "replace job", err)
	}
	return nil
}

func loadJob(path string) *Job {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil
	}
	if job.SchemaVersion != "v1" || job.JobID == "" {
		return nil
	}
	return &job
}

// jobIDFromFilename recovers the job id from "<stamp>_<jobID>.json".
func jobIDFromFilename(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if idx := strings.Index(stem, "_"); idx >= 0 {
		return stem[idx+1:]
	}
	return stem
}

// Filename builds the sortable queue filename for a job.
func Filename(job *Job) (string, error) {
	ts, err := time.Parse(time.RFC3339, job.ScheduledFor)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeQueueJobInvalid, "parse scheduled_for", err)
	}
	return fmt.Sprintf("%s_%s.json", ts.UTC().Format("20060102T150405Z"), job.JobID), nil
}

func (q *FileQueue) listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Exists reports whether a job with the given id is present in any state.
func (q *FileQueue) Exists(jobID string) bool {
	suffix := fmt.Sprintf("_%s.json", jobID)
	for _, dir := range []string{q.pending, q.running, q.done, q.failed} {
		for _, name := range q.listDir(dir) {
			if strings.HasSuffix(name, suffix) {
				return true
			}
		}
	}
	return false
}

// Enqueue adds a job in pending state. It is idempotent per job id across
// every state directory: an id already pending, running, done, or failed
// returns false, and the O_EXCL create keeps a concurrent double-enqueue of
// the same id from touching the existing payload.
func (q *FileQueue) Enqueue(job *Job) (bool, error) {
	if err := q.ensureDirs(); err != nil {
		return false, err
	}
	pending := *job
	pending.Status = StatePending
	pending.LastError = nil

	name, err := Filename(&pending)
	if err != nil {
		return false, err
	}
	if q.Exists(pending.JobID) {
		return false, nil
	}
	target := filepath.Join(q.pending, name)

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrap(errors.ErrCodeQueueIO, "create queue file", err)
	}
	f.Close()
	if err := writeJob(target, &pending); err != nil {
		return false, err
	}
	return true, nil
}

// ListPending returns pending items in FIFO order.
func (q *FileQueue) ListPending() []Item {
	var items []Item
	for _, name := range q.listDir(q.pending) {
		path := filepath.Join(q.pending, name)
		items = append(items, Item{
			Filename: name,
			Path:     path,
			Job:      loadJob(path),
			JobID:    jobIDFromFilename(name),
		})
	}
	return items
}

// PeekNext returns the next pending item without claiming it.
func (q *FileQueue) PeekNext() *Item {
	pending := q.ListPending()
	if len(pending) == 0 {
		return nil
	}
	return &pending[0]
}

// DequeueNext claims the next pending item by renaming it into the running
// directory before the payload is inspected. A concurrent claim of the same
// file loses the rename and yields nil rather than an error, so overlapping
// invocations never observe the same item as claimable.
func (q *FileQueue) DequeueNext() (*Item, error) {
	pending := q.ListPending()
	if len(pending) == 0 {
		return nil, nil
	}
	item := pending[0]
	if err := q.ensureDirs(); err != nil {
		return nil, err
	}
	dest := filepath.Join(q.running, item.Filename)
	if err := os.Rename(item.Path, dest); err != nil {
		if os.IsNotExist(err) {
			// Another worker claimed it first.
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeQueueIO, "claim queue item", err)
	}

	job := item.Job
	if job != nil {
		claimed := *job
		claimed.Status = StateRunning
		claimed.Attempts++
		claimed.LastError = nil
		if err := writeJob(dest, &claimed); err != nil {
			return nil, err
		}
		job = &claimed
	}
	return &Item{Filename: item.Filename, Path: dest, Job: job, JobID: item.JobID}, nil
}

// MarkDone moves a claimed item to the done directory. Terminal.
func (q *FileQueue) MarkDone(item *Item) (*Item, error) {
	return q.finish(item, q.done, StateDone, nil)
}

// MarkFailed moves a claimed item to the failed directory with the error
// payload attached. Terminal.
func (q *FileQueue) MarkFailed(item *Item, jobErr *JobError) (*Item, error) {
	return q.finish(item, q.failed, StateFailed, jobErr)
}

func (q *FileQueue) finish(item *Item, destDir, state string, jobErr *JobError) (*Item, error) {
	if err := q.ensureDirs(); err != nil {
		return nil, err
	}
	src := filepath.Join(q.running, item.Filename)
	dest := filepath.Join(destDir, item.Filename)
	if err := os.Rename(src, dest); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueueNotClaimed, "move claimed item", err)
	}
	job := item.Job
	if job != nil {
		finished := *job
		finished.Status = state
		if state == StateDone {
			finished.LastError = nil
		} else if jobErr != nil {
			finished.LastError = jobErr
		}
		if err := writeJob(dest, &finished); err != nil {
			return nil, err
		}
		job = &finished
	}
	return &Item{Filename: item.Filename, Path: dest, Job: job, JobID: item.JobID}, nil
}
