package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsEverySubmittedTask(t *testing.T) {
	runner := &mockRunner{
		runFn: func(ctx context.Context, task pipeline.Task) pipeline.Outcome {
			if task.ImageID%2 == 0 {
				return pipeline.Outcome{ImageID: task.ImageID, State: model.StateError, Stage: pipeline.StageResize, Err: model.ErrDecode}
			}
			return pipeline.Outcome{ImageID: task.ImageID, State: model.StateDone}
		},
	}
	p := NewPool(runner, 3, 4)
	p.Start()

	for i := range 10 {
		require.NoError(t, p.Submit(context.Background(), pipeline.Task{ImageID: int64(i + 1)}))
	}
	p.Stop()

	require.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, runner.runs())
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(&mockRunner{}, 1, 1)
	p.Start()
	p.Stop()
	p.Stop() // idempotent

	err := p.Submit(context.Background(), pipeline.Task{ImageID: 1})
	require.ErrorIs(t, err, model.ErrPoolClosed)
}

func TestPool_RunOutlivesSubmitContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runErr := make(chan error, 1)

	runner := &mockRunner{
		runFn: func(ctx context.Context, task pipeline.Task) pipeline.Outcome {
			close(started)
			<-release
			runErr <- ctx.Err()
			return pipeline.Outcome{ImageID: task.ImageID, State: model.StateDone}
		},
	}
	p := NewPool(runner, 1, 1)
	p.Start()

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Submit(reqCtx, pipeline.Task{ImageID: 1}))
	<-started
	cancel() // request finished
	close(release)

	p.Stop()
	require.NoError(t, <-runErr)
}

func TestPool_SubmitBlocksOnFullQueue(t *testing.T) {
	release := make(chan struct{})
	runner := &mockRunner{
		runFn: func(ctx context.Context, task pipeline.Task) pipeline.Outcome {
			<-release
			return pipeline.Outcome{ImageID: task.ImageID}
		},
	}
	p := NewPool(runner, 1, 1)
	p.Start()

	// первый уходит воркеру, второй занимает очередь
	require.NoError(t, p.Submit(context.Background(), pipeline.Task{ImageID: 1}))
	require.Eventually(t, func() bool { return len(runner.runs()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), pipeline.Task{ImageID: 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, pipeline.Task{ImageID: 3})
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	p.Stop()
	require.Equal(t, []int64{1, 2}, runner.runs())
}

func TestPool_StopUnblocksWaitingSubmit(t *testing.T) {
	release := make(chan struct{})
	runner := &mockRunner{
		runFn: func(ctx context.Context, task pipeline.Task) pipeline.Outcome {
			<-release
			return pipeline.Outcome{ImageID: task.ImageID}
		},
	}
	p := NewPool(runner, 1, 0)
	p.Start()

	require.NoError(t, p.Submit(context.Background(), pipeline.Task{ImageID: 1}))
	require.Eventually(t, func() bool { return len(runner.runs()) == 1 }, time.Second, 5*time.Millisecond)

	blocked := make(chan error, 1)
	go func() {
		blocked <- p.Submit(context.Background(), pipeline.Task{ImageID: 2})
	}()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	require.ErrorIs(t, <-blocked, model.ErrPoolClosed)
	close(release)
	<-stopped
	require.Equal(t, []int64{1}, runner.runs())
}

func TestPool_PanicInRunDoesNotKillWorker(t *testing.T) {
	runner := &mockRunner{
		runFn: func(ctx context.Context, task pipeline.Task) pipeline.Outcome {
			if task.ImageID == 1 {
				panic("corrupted decoder state")
			}
			return pipeline.Outcome{ImageID: task.ImageID}
		},
	}
	p := NewPool(runner, 1, 2)
	p.Start()

	require.NoError(t, p.Submit(context.Background(), pipeline.Task{ImageID: 1}))
	require.NoError(t, p.Submit(context.Background(), pipeline.Task{ImageID: 2}))
	p.Stop()

	require.Equal(t, []int64{1, 2}, runner.runs())
}
