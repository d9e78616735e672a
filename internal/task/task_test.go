package task

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	meta      Metadata
	raw       []map[string]interface{}
	collectErr error
	validateErr error
	saveErr    error
}

func (s *stubExecutor) Metadata() Metadata { return s.meta }

func (s *stubExecutor) Collect(ctx context.Context, params map[string]interface{}, progress *Progress) ([]map[string]interface{}, error) {
	if s.collectErr != nil {
		return nil, s.collectErr
	}
	return s.raw, nil
}

func (s *stubExecutor) Validate(ctx context.Context, raw []map[string]interface{}) ([]map[string]interface{}, error) {
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if r["code"] != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubExecutor) Save(ctx context.Context, kept []map[string]interface{}, progress *Progress) (int, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	return len(kept), nil
}

func TestRunPipelineHappyPath(t *testing.T) {
	exec := &stubExecutor{
		meta: Metadata{TaskType: "quote_collect", Category: CategoryMarket},
		raw: []map[string]interface{}{
			{"code": "600000"}, {"code": nil}, {"code": "000001"},
		},
	}
	progress := &Progress{}
	summary := RunPipeline(context.Background(), exec, nil, progress)

	require.True(t, summary.Success)
	require.Equal(t, 3, summary.TotalRecords)
	require.Equal(t, 2, summary.SavedRecords)
	require.Equal(t, StatusCompleted, progress.Status)
	require.False(t, progress.CompletedAt.IsZero())
}

func TestRunPipelineFailsOnCollectError(t *testing.T) {
	exec := &stubExecutor{
		meta:       Metadata{TaskType: "quote_collect"},
		collectErr: fmt.Errorf("upstream down"),
	}
	progress := &Progress{}
	summary := RunPipeline(context.Background(), exec, nil, progress)

	require.False(t, summary.Success)
	require.Equal(t, StatusFailed, progress.Status)
	require.Contains(t, progress.Error, "upstream down")
}

func TestRunPipelineFailsOnSaveError(t *testing.T) {
	exec := &stubExecutor{
		meta: Metadata{TaskType: "quote_collect"},
		raw:  []map[string]interface{}{{"code": "600000"}},
		saveErr: fmt.Errorf("db down"),
	}
	progress := &Progress{}
	summary := RunPipeline(context.Background(), exec, nil, progress)

	require.False(t, summary.Success)
	require.Equal(t, 1, summary.TotalRecords)
	require.Equal(t, StatusFailed, progress.Status)
}

func TestRegistryListTasksSortedByPriorityThenName(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubExecutor{meta: Metadata{TaskType: "b", Name: "Bravo", Category: CategoryMarket, Priority: PriorityNormal}})
	reg.Register(&stubExecutor{meta: Metadata{TaskType: "a", Name: "Alpha", Category: CategoryMarket, Priority: PriorityCritical}})
	reg.Register(&stubExecutor{meta: Metadata{TaskType: "c", Name: "Charlie", Category: CategoryNews, Priority: PriorityNormal}})

	tasks := reg.ListTasks("")
	require.Len(t, tasks, 3)
	require.Equal(t, "Alpha", tasks[0].Name)
	require.Equal(t, "Bravo", tasks[1].Name)
	require.Equal(t, "Charlie", tasks[2].Name)

	marketTasks := reg.ListTasks(CategoryMarket)
	require.Len(t, marketTasks, 2)
}

func TestRegistryListCategories(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubExecutor{meta: Metadata{TaskType: "a", Category: CategoryMarket}})
	reg.Register(&stubExecutor{meta: Metadata{TaskType: "b", Category: CategoryMarket}})
	reg.Register(&stubExecutor{meta: Metadata{TaskType: "c", Category: CategoryNews}})

	counts := reg.ListCategories()
	require.Equal(t, 2, counts[CategoryMarket])
	require.Equal(t, 1, counts[CategoryNews])
}

func TestValidateParamsRequiredMissing(t *testing.T) {
	meta := Metadata{TaskType: "t", Parameters: []Parameter{{Name: "symbols", Required: true}}}
	err := ValidateParams(meta, map[string]interface{}{})
	require.Error(t, err)
}

func TestValidateParamsChoicesRejectsUnknown(t *testing.T) {
	meta := Metadata{TaskType: "t", Parameters: []Parameter{
		{Name: "frequency", Choices: []interface{}{"daily", "weekly"}},
	}}
	require.NoError(t, ValidateParams(meta, map[string]interface{}{"frequency": "daily"}))
	require.Error(t, ValidateParams(meta, map[string]interface{}{"frequency": "hourly"}))
}
