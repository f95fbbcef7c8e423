package orchestrator

import (
	"context"
	"fmt"

	"conductor/pkg/task"
)

// ExecutePipeline runs tasks sequentially, feeding each completed
// stage's output into every later stage under the reserved pipeline
// context key. Each stage runs under the best strategy. The first
// failing stage stops the pipeline: the returned slice holds one result
// per executed stage, the last of them the failed one, together with a
// PipelineStageFailedError.
//
// Submitted tasks are never mutated; stage output is injected into a
// copied context.
func (o *Orchestrator) ExecutePipeline(ctx context.Context, tasks []task.Task) ([]task.Result, error) {
	results := make([]task.Result, 0, len(tasks))
	carried := make(map[string]task.StageOutput, len(tasks))

	for i := range tasks {
		staged := tasks[i]
		if len(carried) > 0 {
			stages := make(map[string]task.StageOutput, len(carried))
			for k, v := range carried {
				stages[k] = v
			}
			stagedCtx := staged.CloneContext()
			stagedCtx[task.CtxPipeline] = stages
			staged.Context = stagedCtx
		}

		res, err := o.Execute(ctx, staged, StrategyBest)
		results = append(results, res)
		if err != nil {
			o.logger.Warn("Pipeline stopped at stage %d/%d (%s): %v", i+1, len(tasks), tasks[i].Type, err)
			return results, &PipelineStageFailedError{Stage: i, TaskType: tasks[i].Type, Err: err}
		}
		carried[fmt.Sprintf("stage_%d", i+1)] = task.StageOutput{
			TaskType: tasks[i].Type,
			Content:  res.Content,
			AgentID:  res.AgentID,
		}
	}
	return results, nil
}
