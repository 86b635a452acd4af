package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storyforge/internal/model"
)

func TestTargetSizeExpectedCountWins(t *testing.T) {
	assert.Equal(t, 17, TargetSize(17, 8, 25))
}

func TestTargetSizeBaselineFromFunctionalities(t *testing.T) {
	// No learning recorded: baseline applies directly.
	assert.Equal(t, 8, TargetSize(0, 8, 0))
	assert.Equal(t, 5, TargetSize(0, 2, 0))
	assert.Equal(t, 30, TargetSize(0, 50, 0))
	assert.Equal(t, 5, TargetSize(0, 0, 0))
}

func TestTargetSizeLearnedRaisesBaseline(t *testing.T) {
	assert.Equal(t, 25, TargetSize(0, 8, 25))
	assert.Equal(t, 30, TargetSize(0, 8, 40))
	assert.Equal(t, 8, TargetSize(0, 8, 6))
}

func TestActorGuide(t *testing.T) {
	guide := ActorGuide(&model.Requirements{Actors: []model.Actor{
		{Name: "Contable", Description: "emite facturas"},
	}})
	assert.Equal(t, "- Contable: emite facturas", guide)
	assert.Equal(t, "", ActorGuide(nil))
	assert.Equal(t, "", ActorGuide(&model.Requirements{}))
}

func TestAvgCriteria(t *testing.T) {
	assert.Zero(t, AvgCriteria(nil))
	stories := []model.UserStory{
		{AcceptanceCriteria: []string{"a", "b", "c", "d"}},
		{AcceptanceCriteria: []string{"a", "b", "c", "d", "e", "f"}},
	}
	assert.Equal(t, 5.0, AvgCriteria(stories))
}
