// Package eval scores a generated backlog against a reference story set by
// greedy weighted matching, plus structural metrics over the generated
// stories alone.
package eval

import (
	"math"
	"strings"

	"storyforge/internal/model"
	"storyforge/internal/textsim"
)

// Match pairs one expected story with its best generated counterpart.
type Match struct {
	ExpectedID  string  `json:"expectedId"`
	GeneratedID string  `json:"generatedId"`
	Score       float64 `json:"score"`
}

// Result is the full evaluation artifact.
type Result struct {
	Status              string  `json:"status"`
	MatchedCount        int     `json:"matchedCount"`
	ExpectedCount       int     `json:"expectedCount"`
	GeneratedCount      int     `json:"generatedCount"`
	Coverage            float64 `json:"coverage"`
	Precision           float64 `json:"precision"`
	AvgMatchScore       float64 `json:"avgMatchScore"`
	ActorConsistency    float64 `json:"actorConsistency"`
	AcGwtRatio          float64 `json:"acGwtRatio"`
	StoriesWithEnoughAC float64 `json:"storiesWithEnoughAc"`
	StoriesWithNotes    float64 `json:"storiesWithNotes"`
	QualityScore        float64 `json:"qualityScore"`
	Matches             []Match `json:"matches"`
}

const acceptThreshold = 0.45

// Similarity weights per story field.
const (
	weightRole   = 0.25
	weightTitle  = 0.25
	weightWant   = 0.35
	weightSoThat = 0.15
)

// EvaluateAgainstExpected matches each expected story, in order, with the
// best still-unmatched generated story. When no reference stories exist the
// evaluation is skipped rather than scored as zero.
func EvaluateAgainstExpected(generated []model.UserStory, expected []model.ExpectedStory) Result {
	res := Result{
		ExpectedCount:  len(expected),
		GeneratedCount: len(generated),
	}
	if len(expected) == 0 {
		res.Status = "skipped"
		return res
	}
	res.Status = "evaluated"

	used := make([]bool, len(generated))
	actorMatches := 0
	scoreSum := 0.0

	for _, exp := range expected {
		bestIdx := -1
		bestScore := 0.0
		for i, gen := range generated {
			if used[i] {
				continue
			}
			score := storySimilarity(exp, gen)
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 || bestScore < acceptThreshold {
			continue
		}

		used[bestIdx] = true
		res.MatchedCount++
		scoreSum += bestScore
		res.Matches = append(res.Matches, Match{
			ExpectedID:  exp.StoryID,
			GeneratedID: generated[bestIdx].StoryID,
			Score:       Round3(bestScore),
		})
		if textsim.Normalize(exp.Role) == textsim.Normalize(generated[bestIdx].Role) {
			actorMatches++
		}
	}

	res.Coverage = ratio(res.MatchedCount, len(expected))
	res.Precision = ratio(res.MatchedCount, len(generated))
	if res.MatchedCount > 0 {
		res.AvgMatchScore = scoreSum / float64(res.MatchedCount)
		res.ActorConsistency = ratio(actorMatches, res.MatchedCount)
	}

	res.AcGwtRatio = acGwtRatio(generated)
	res.StoriesWithEnoughAC = fractionOf(generated, func(s model.UserStory) bool {
		return len(s.AcceptanceCriteria) >= 5
	})
	res.StoriesWithNotes = fractionOf(generated, func(s model.UserStory) bool {
		return s.ValidNotesSections() >= 2
	})

	res.QualityScore = Round3(
		0.30*res.Coverage +
			0.15*res.Precision +
			0.15*res.AvgMatchScore +
			0.15*res.ActorConsistency +
			0.10*res.AcGwtRatio +
			0.10*res.StoriesWithEnoughAC +
			0.05*res.StoriesWithNotes)

	res.Coverage = Round3(res.Coverage)
	res.Precision = Round3(res.Precision)
	res.AvgMatchScore = Round3(res.AvgMatchScore)
	res.ActorConsistency = Round3(res.ActorConsistency)
	res.AcGwtRatio = Round3(res.AcGwtRatio)
	res.StoriesWithEnoughAC = Round3(res.StoriesWithEnoughAC)
	res.StoriesWithNotes = Round3(res.StoriesWithNotes)
	return res
}

func storySimilarity(exp model.ExpectedStory, gen model.UserStory) float64 {
	return weightRole*textsim.Overlap(exp.Role, gen.Role) +
		weightTitle*textsim.Overlap(exp.Title, gen.Title) +
		weightWant*textsim.Overlap(exp.Want, gen.Want) +
		weightSoThat*textsim.Overlap(exp.SoThat, gen.SoThat)
}

// acGwtRatio is the mean, over stories, of the fraction of acceptance
// criteria carrying all three Gherkin markers.
func acGwtRatio(stories []model.UserStory) float64 {
	if len(stories) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range stories {
		if len(s.AcceptanceCriteria) == 0 {
			continue
		}
		gwt := 0
		for _, c := range s.AcceptanceCriteria {
			lower := strings.ToLower(c)
			if strings.Contains(lower, "dado") && strings.Contains(lower, "cuando") && strings.Contains(lower, "entonces") {
				gwt++
			}
		}
		total += float64(gwt) / float64(len(s.AcceptanceCriteria))
	}
	return total / float64(len(stories))
}

func fractionOf(stories []model.UserStory, pred func(model.UserStory) bool) float64 {
	if len(stories) == 0 {
		return 0
	}
	count := 0
	for _, s := range stories {
		if pred(s) {
			count++
		}
	}
	return float64(count) / float64(len(stories))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Round3 rounds to 3 decimals.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
