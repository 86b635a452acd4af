package pipeline

import (
	"fmt"
	"strings"

	"storyforge/internal/model"
)

// ActorGuide renders the canonical actor list for prompts.
func ActorGuide(reqs *model.Requirements) string {
	if reqs == nil || len(reqs.Actors) == 0 {
		return ""
	}
	var b strings.Builder
	for _, actor := range reqs.Actors {
		fmt.Fprintf(&b, "- %s: %s\n", actor.Name, actor.Description)
	}
	return strings.TrimSpace(b.String())
}

const (
	minTarget = 5
	maxTarget = 30
)

// TargetSize computes the story target for a run. An explicit expected count
// wins outright; otherwise the functionality baseline is raised by the
// learned average, both clamped to [5, 30].
func TargetSize(expectedCount, functionalityCount, learnedTarget int) int {
	if expectedCount > 0 {
		return expectedCount
	}

	fc := functionalityCount
	if fc == 0 {
		fc = minTarget
	}
	baseline := max(minTarget, min(maxTarget, fc))

	learned := min(maxTarget, learnedTarget)
	return max(baseline, learned)
}

// AvgCriteria is the mean acceptance-criteria count over the story set.
func AvgCriteria(stories []model.UserStory) float64 {
	if len(stories) == 0 {
		return 0
	}
	total := 0
	for _, s := range stories {
		total += len(s.AcceptanceCriteria)
	}
	return float64(total) / float64(len(stories))
}
