package worker

import (
	"context"
	"sync"

	"github.com/UnendingLoop/ImagePipeline/internal/pipeline"
)

type mockRunner struct {
	runFn func(ctx context.Context, task pipeline.Task) pipeline.Outcome

	mu  sync.Mutex
	ran []int64
}

func (m *mockRunner) Run(ctx context.Context, task pipeline.Task) pipeline.Outcome {
	m.mu.Lock()
	m.ran = append(m.ran, task.ImageID)
	m.mu.Unlock()
	if m.runFn == nil {
		return pipeline.Outcome{ImageID: task.ImageID}
	}
	return m.runFn(ctx, task)
}

func (m *mockRunner) runs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ran...)
}
