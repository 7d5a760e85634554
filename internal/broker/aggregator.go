package broker

import (
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"pixtools/internal/tasks"
)

// Aggregator synthesizes the finalize task from a chord's sibling fan-out
// results once asynq closes the group (spec §4.4: "on the last sibling's
// termination, the finalize callback is invoked with the aggregated list").
// Registered on asynq.Config.GroupAggregator by worker.NewServer.
func Aggregator() asynq.GroupAggregator {
	return asynq.GroupAggregatorFunc(aggregate)
}

func aggregate(group string, results []*asynq.Task) *asynq.Task {
	out := make([]tasks.FanOutResult, 0, len(results))
	for _, t := range results {
		var r tasks.FanOutResult
		if err := json.Unmarshal(t.Payload(), &r); err != nil {
			slog.Error("broker: malformed fan-out result in group, dropping", slog.String("group", group), slog.String("error", err.Error()))
			continue
		}
		out = append(out, r)
	}

	payload := tasks.FinalizePayload{JobID: group, Results: out}
	body, err := payload.Marshal()
	if err != nil {
		slog.Error("broker: marshal aggregated finalize payload", slog.String("group", group), slog.String("error", err.Error()))
		body = []byte(`{"job_id":"` + group + `"}`)
	}
	return asynq.NewTask(tasks.TypeFinalize, body)
}
