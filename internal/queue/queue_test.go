package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(id, scheduledFor string) *Job {
	return &Job{
		SchemaVersion: "v1",
		JobID:         id,
		CreatedAt:     "2026-01-10T08:00:00Z",
		ScheduledFor:  scheduledFor,
		PipelinePath:  "plans/daily.yaml",
		RunID:         "20260110_1500_" + id,
		Status:        StatePending,
	}
}

func TestEnqueueIsIdempotentPerJobID(t *testing.T) {
	q := New(t.TempDir())

	job := testJob("abc123def456", "2026-01-10T15:00:00Z")
	added, err := q.Enqueue(job)
	require.NoError(t, err)
	assert.True(t, added)

	again, err := q.Enqueue(job)
	require.NoError(t, err)
	assert.False(t, again, "second enqueue of the same id must be a no-op")

	assert.Len(t, q.ListPending(), 1)
}

func TestListPendingIsFIFOByScheduledTime(t *testing.T) {
	q := New(t.TempDir())

	// Enqueued out of order on purpose.
	late := testJob("late00000000", "2026-01-10T18:00:00Z")
	early := testJob("early0000000", "2026-01-10T09:00:00Z")
	mid := testJob("mid000000000", "2026-01-10T12:00:00Z")
	for _, job := range []*Job{late, early, mid} {
		_, err := q.Enqueue(job)
		require.NoError(t, err)
	}

	items := q.ListPending()
	require.Len(t, items, 3)
	assert.Equal(t, "early0000000", items[0].JobID)
	assert.Equal(t, "mid000000000", items[1].JobID)
	assert.Equal(t, "late00000000", items[2].JobID)
}

func TestDequeueNextClaimsAtomically(t *testing.T) {
	q := New(t.TempDir())
	_, err := q.Enqueue(testJob("abc123def456", "2026-01-10T15:00:00Z"))
	require.NoError(t, err)

	item, err := q.DequeueNext()
	require.NoError(t, err)
	require.NotNil(t, item)
	require.NotNil(t, item.Job)
	assert.Equal(t, StateRunning, item.Job.Status)
	assert.Equal(t, 1, item.Job.Attempts)
	assert.Empty(t, q.ListPending(), "claimed item must leave pending")

	// The same queue has nothing left to claim.
	second, err := q.DequeueNext()
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestConcurrentDequeueClaimsEachJobOnce(t *testing.T) {
	q := New(t.TempDir())
	jobIDs := []string{"job000000001", "job000000002", "job000000003", "job000000004", "job000000005"}
	for i, id := range jobIDs {
		_, err := q.Enqueue(testJob(id, fmt.Sprintf("2026-01-10T%02d:00:00Z", 9+i)))
		require.NoError(t, err)
	}

	// Several workers race over the same directory; each drains until the
	// queue reports empty.
	var (
		mu      sync.Mutex
		claimed []string
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.DequeueNext()
				if !assert.NoError(t, err) || item == nil {
					return
				}
				mu.Lock()
				claimed = append(claimed, item.JobID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, jobIDs, claimed, "every job is claimed by exactly one worker")
	assert.Empty(t, q.ListPending())
}

func TestEnqueueRejectsIDInTerminalState(t *testing.T) {
	q := New(t.TempDir())
	_, err := q.Enqueue(testJob("abc123def456", "2026-01-10T15:00:00Z"))
	require.NoError(t, err)

	item, err := q.DequeueNext()
	require.NoError(t, err)
	_, err = q.MarkDone(item)
	require.NoError(t, err)

	again, err := q.Enqueue(testJob("abc123def456", "2026-01-11T15:00:00Z"))
	require.NoError(t, err)
	assert.False(t, again, "a completed job id must not be enqueued again")
	assert.Empty(t, q.ListPending())
}

func TestDequeueNextOnEmptyQueue(t *testing.T) {
	q := New(t.TempDir())
	item, err := q.DequeueNext()
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestMarkDoneMovesToTerminalState(t *testing.T) {
	q := New(t.TempDir())
	_, err := q.Enqueue(testJob("abc123def456", "2026-01-10T15:00:00Z"))
	require.NoError(t, err)

	item, err := q.DequeueNext()
	require.NoError(t, err)

	done, err := q.MarkDone(item)
	require.NoError(t, err)
	assert.Equal(t, StateDone, done.Job.Status)
	assert.Nil(t, done.Job.LastError)
	assert.True(t, q.Exists("abc123def456"), "terminal jobs still count for idempotency")
}

func TestMarkFailedRecordsError(t *testing.T) {
	q := New(t.TempDir())
	_, err := q.Enqueue(testJob("abc123def456", "2026-01-10T15:00:00Z"))
	require.NoError(t, err)

	item, err := q.DequeueNext()
	require.NoError(t, err)

	failed, err := q.MarkFailed(item, &JobError{Code: "pipeline_failed", Message: "step exploded"})
	require.NoError(t, err)
	require.NotNil(t, failed.Job.LastError)
	assert.Equal(t, StateFailed, failed.Job.Status)
	assert.Equal(t, "pipeline_failed", failed.Job.LastError.Code)
}

func TestUnparsableJobIsStillClaimable(t *testing.T) {
	dir := t.TempDir()
	q := New(dir)
	_, err := q.Enqueue(testJob("abc123def456", "2026-01-10T15:00:00Z"))
	require.NoError(t, err)

	// Corrupt the payload behind the queue's back.
	pending := filepath.Join(dir, "pending")
	entries, err := os.ReadDir(pending)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(filepath.Join(pending, entries[0].Name()), []byte("{broken"), 0o644))

	item, err := q.DequeueNext()
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Nil(t, item.Job, "broken payload parses to nil job")
	assert.Equal(t, "abc123def456", item.JobID, "job id is recovered from the filename")

	_, err = q.MarkFailed(item, &JobError{Code: "job_invalid", Message: "unparsable"})
	require.NoError(t, err)
}

func TestEnqueueRejectsBadScheduledFor(t *testing.T) {
	q := New(t.TempDir())
	job := testJob("abc123def456", "not-a-time")
	_, err := q.Enqueue(job)
	assert.Error(t, err)
}
