package pipeline

import (
	"storyforge/internal/model"
	"storyforge/internal/textsim"
)

// dedupeThreshold collapses stories whose intent keys overlap at or above it.
const dedupeThreshold = 0.82

// DedupeByIntent drops stories whose role+title+want key text duplicates an
// earlier kept story. Greedy and order-preserving, so the first occurrence
// always survives.
func DedupeByIntent(stories []model.UserStory) []model.UserStory {
	kept := make([]model.UserStory, 0, len(stories))
	keys := make([]string, 0, len(stories))

	for _, story := range stories {
		key := story.KeyText()
		duplicate := false
		for _, existing := range keys {
			if textsim.Overlap(key, existing) >= dedupeThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, story)
			keys = append(keys, key)
		}
	}
	return kept
}
