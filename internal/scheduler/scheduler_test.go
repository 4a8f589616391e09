package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grove-run/grove/internal/model"
)

func okProcess(output string) model.ProcessFunc {
	return func(ctx model.HandlerContext, deps map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
		return model.TaskResult{Outputs: map[string]any{"value": output}}, nil
	}
}

func TestRunOrdersDependenciesBeforeDependents(t *testing.T) {
	t.Parallel()

	var completionOrder []string
	track := func(name string) model.ProcessFunc {
		return func(ctx model.HandlerContext, deps map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
			completionOrder = append(completionOrder, name)
			return model.TaskResult{}, nil
		}
	}

	nodes := []model.TaskNode{
		{Type: model.TaskBuild, Name: "a", Version: "v1", Process: track("a")},
		{Type: model.TaskBuild, Name: "b", Version: "v1", Dependencies: []model.TaskKey{{Type: model.TaskBuild, Name: "a"}}, Process: track("b")},
		{Type: model.TaskBuild, Name: "c", Version: "v1", Dependencies: []model.TaskKey{{Type: model.TaskBuild, Name: "b"}}, Process: track("c")},
	}

	s := New(4, nil, nil)
	results, err := s.Run(context.Background(), nodes)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, []string{"a", "b", "c"}, completionOrder)
}

func TestRunSkipsDependentsOfFailedNode(t *testing.T) {
	t.Parallel()

	var dependentCalled int32
	nodes := []model.TaskNode{
		{Type: model.TaskBuild, Name: "a", Version: "v1", Process: func(model.HandlerContext, map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
			return model.TaskResult{}, context.DeadlineExceeded
		}},
		{Type: model.TaskTest, Name: "a-unit", Version: "v1", Dependencies: []model.TaskKey{{Type: model.TaskBuild, Name: "a"}}, Process: func(model.HandlerContext, map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
			atomic.AddInt32(&dependentCalled, 1)
			return model.TaskResult{}, nil
		}},
	}

	s := New(4, nil, nil)
	results, err := s.Run(context.Background(), nodes)
	require.NoError(t, err)
	require.Equal(t, int32(0), atomic.LoadInt32(&dependentCalled))

	buildKey := model.TaskKey{Type: model.TaskBuild, Name: "a"}
	testKey := model.TaskKey{Type: model.TaskTest, Name: "a-unit"}
	require.Error(t, results[buildKey].Err)
	require.Error(t, results[testKey].Err)
}

func TestRunMemoizesByVersionUnlessForced(t *testing.T) {
	t.Parallel()

	var calls int32
	proc := func(model.HandlerContext, map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
		atomic.AddInt32(&calls, 1)
		return model.TaskResult{Outputs: map[string]any{"n": atomic.LoadInt32(&calls)}}, nil
	}

	cache := NewResultCache()
	s := New(2, cache, nil)

	_, err := s.Run(context.Background(), []model.TaskNode{{Type: model.TaskBuild, Name: "a", Version: "v1", Process: proc}})
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = s.Run(context.Background(), []model.TaskNode{{Type: model.TaskBuild, Name: "a", Version: "v1", Process: proc}})
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "second run with identical version must hit the cache")

	_, err = s.Run(context.Background(), []model.TaskNode{{Type: model.TaskBuild, Name: "a", Version: "v1", Process: proc, Force: true}})
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls), "force=true must bypass the cache")
}

func TestRunFailsNodeExceedingTimeout(t *testing.T) {
	t.Parallel()

	nodes := []model.TaskNode{{
		Type:       model.TaskTest,
		Name:       "slow",
		Version:    "v1",
		TimeoutSec: 1,
		Process: func(hctx model.HandlerContext, _ map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
			<-hctx.Ctx.Done()
			return model.TaskResult{}, nil
		},
	}}

	s := New(1, nil, nil)
	results, err := s.Run(context.Background(), nodes)
	require.NoError(t, err)

	key := model.TaskKey{Type: model.TaskTest, Name: "slow"}
	require.Error(t, results[key].Err)
	require.Contains(t, results[key].Err.Error(), "timed out")
}

func TestRunCancellationMarksUnstartedNodesCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodes := []model.TaskNode{
		{Type: model.TaskBuild, Name: "a", Version: "v1", Process: func(model.HandlerContext, map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
			cancel()
			return model.TaskResult{}, nil
		}},
		{Type: model.TaskTest, Name: "a-unit", Version: "v1", Dependencies: []model.TaskKey{{Type: model.TaskBuild, Name: "a"}}, Process: func(model.HandlerContext, map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
			t.Error("node unblocked after cancellation must not run")
			return model.TaskResult{}, nil
		}},
	}

	s := New(1, nil, nil)
	results, err := s.Run(ctx, nodes)
	require.NoError(t, err)

	require.NoError(t, results[model.TaskKey{Type: model.TaskBuild, Name: "a"}].Err)
	cancelledErr := results[model.TaskKey{Type: model.TaskTest, Name: "a-unit"}].Err
	require.Error(t, cancelledErr)
	require.Contains(t, cancelledErr.Error(), "cancelled")
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	var current, maxSeen int32
	proc := func(model.HandlerContext, map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		atomic.AddInt32(&current, -1)
		return model.TaskResult{}, nil
	}

	nodes := make([]model.TaskNode, 10)
	for i := range nodes {
		nodes[i] = model.TaskNode{Type: model.TaskBuild, Name: string(rune('a' + i)), Version: "v1", Process: proc}
	}

	s := New(2, nil, nil)
	_, err := s.Run(context.Background(), nodes)
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}
