package batch

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ncmdump"
)

type recordingLogger struct {
	ncmdump.NullLogger

	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) WithField(string, interface{}) ncmdump.Logger { return l }
func (l *recordingLogger) WithError(error) ncmdump.Logger              { return l }

func (l *recordingLogger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func TestRunnerCompletesEveryTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	tasks := make([]Task, 23)
	for i := range tasks {
		tasks[i] = Task{Input: fmt.Sprintf("in-%d.ncm", i), Output: fmt.Sprintf("out-%d", i)}
	}

	failing := func(input string) bool {
		return strings.HasSuffix(input, "0.ncm") || strings.HasSuffix(input, "5.ncm")
	}

	var mu sync.Mutex
	seen := map[string]int{}

	log := &recordingLogger{}
	r, err := NewRunner(log, 4, func(task Task) error {
		mu.Lock()
		seen[task.Input]++
		mu.Unlock()

		if failing(task.Input) {
			return fmt.Errorf("%w: broken container", ncmdump.ErrFormat)
		}
		return nil
	})
	require.NoError(t, err)

	summary := r.Run(tasks)

	assert.Equal(t, 23, summary.Completed)
	assert.Equal(t, 18, summary.Succeeded)
	assert.Equal(t, 5, summary.Failed)
	assert.Equal(t, uint32(23), r.Completed())
	assert.Greater(t, summary.Elapsed.Nanoseconds(), int64(0))

	assert.Len(t, seen, 23)
	for input, count := range seen {
		assert.Equalf(t, 1, count, "task %s converted %d times", input, count)
	}

	assert.Len(t, log.infos, 18)
	assert.Len(t, log.errors, 5)
}

func TestRunnerCountsFailedTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := NewRunner(&ncmdump.NullLogger{}, 2, func(Task) error {
		return errors.New("always fails")
	})
	require.NoError(t, err)

	summary := r.Run([]Task{{Input: "a.ncm"}, {Input: "b.ncm"}, {Input: "c.ncm"}})

	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, uint32(3), r.Completed())
}

func TestRunnerRejectsBadWorkerCount(t *testing.T) {
	for _, workers := range []int{0, -1} {
		r, err := NewRunner(&ncmdump.NullLogger{}, workers, func(Task) error { return nil })
		assert.Nil(t, r)
		assert.ErrorIs(t, err, ncmdump.ErrConfig)
	}
}

func TestRunnerEmptyTaskList(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := NewRunner(&ncmdump.NullLogger{}, 2, func(Task) error {
		t.Error("convert called without tasks")
		return nil
	})
	require.NoError(t, err)

	summary := r.Run(nil)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, uint32(0), r.Completed())
}

func TestDefaultWorkersAtLeastTwo(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 2)
}
