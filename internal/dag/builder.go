package dag

import "pixtools/internal/jobstore"

// Build implements the five rules of spec §4.4. The caller (submission
// handler) is responsible for rule 3 — Build never receives an empty list.
func Build(jobID string, operations jobstore.OperationList, params jobstore.ParamsByTag) Plan {
	steps := normalize(operations, params)

	if len(steps) == 1 {
		return Plan{Kind: KindChain, JobID: jobID, Chain: steps[0]}
	}
	return Plan{Kind: KindChord, JobID: jobID, Chord: steps}
}

// normalize collapses duplicate tags (rule: multiset semantics, duplicates
// allowed on submission but collapsed here) while preserving first-seen
// order, and resolves each tag's parameters.
func normalize(operations jobstore.OperationList, params jobstore.ParamsByTag) []Step {
	seen := make(map[jobstore.OperationTag]bool, len(operations))
	steps := make([]Step, 0, len(operations))

	for _, op := range operations {
		if seen[op] {
			continue
		}
		seen[op] = true
		steps = append(steps, Step{
			Operation: op,
			Params:    params[op],
		})
	}
	return steps
}
