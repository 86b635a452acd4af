package pipeline

import (
	"sort"

	"storyforge/internal/model"
	"storyforge/internal/textsim"
)

// coveredThreshold marks a functionality as covered by some story.
const coveredThreshold = 0.18

// uncoveredTopLimit bounds the uncovered list fed back into gap coverage.
const uncoveredTopLimit = 10

// UncoveredFunctionality pairs a functionality with its best story score.
type UncoveredFunctionality struct {
	Functionality model.Functionality `json:"functionality"`
	BestScore     float64             `json:"bestScore"`
}

// CoverageResult summarizes how well the story set spans the catalog.
type CoverageResult struct {
	Coverage  float64                  `json:"coverage"`
	Covered   int                      `json:"covered"`
	Total     int                      `json:"total"`
	Uncovered []UncoveredFunctionality `json:"uncovered"`
}

// ComputeCoverage scores each functionality's full text against every story
// body and reports the fraction covered plus the 10 worst uncovered entries,
// ascending by score.
func ComputeCoverage(functionalities []model.Functionality, stories []model.UserStory) CoverageResult {
	res := CoverageResult{Total: len(functionalities)}
	if len(functionalities) == 0 {
		res.Coverage = 1
		return res
	}

	bodies := make([]string, len(stories))
	for i, s := range stories {
		bodies[i] = s.BodyText()
	}

	for _, fn := range functionalities {
		best := 0.0
		full := fn.FullText()
		for _, body := range bodies {
			if score := textsim.Overlap(full, body); score > best {
				best = score
			}
		}
		if best >= coveredThreshold {
			res.Covered++
		} else {
			res.Uncovered = append(res.Uncovered, UncoveredFunctionality{Functionality: fn, BestScore: best})
		}
	}

	sort.Slice(res.Uncovered, func(i, j int) bool {
		if res.Uncovered[i].BestScore != res.Uncovered[j].BestScore {
			return res.Uncovered[i].BestScore < res.Uncovered[j].BestScore
		}
		return res.Uncovered[i].Functionality.ID < res.Uncovered[j].Functionality.ID
	})
	if len(res.Uncovered) > uncoveredTopLimit {
		res.Uncovered = res.Uncovered[:uncoveredTopLimit]
	}

	res.Coverage = float64(res.Covered) / float64(res.Total)
	return res
}
