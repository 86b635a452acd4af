package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/model"
	"storyforge/internal/store"
)

func testCatalog() *model.Requirements {
	return &model.Requirements{
		Actors: []model.Actor{
			{ID: "a1", Name: "Administrador de tienda", Description: "gestiona el catálogo y los pedidos de la tienda"},
			{ID: "a2", Name: "Contable", Description: "emite y revisa facturas de clientes"},
		},
		Functionalities: []model.Functionality{
			{ID: "F-1", ActorID: "a1", Action: "registrar pedidos nuevos", UserGoal: "registrar pedidos de clientes", Benefit: "control de ventas", SourceChunkIDs: []string{"c_1", "c_2"}},
			{ID: "F-2", ActorID: "a2", Action: "emitir facturas electronicas", UserGoal: "emitir facturas firmadas", Benefit: "cumplimiento fiscal", SourceChunkIDs: []string{"c_3"}},
		},
	}
}

func TestActorExactNameMatch(t *testing.T) {
	stories := []model.UserStory{{StoryID: "US-1", Role: "administrador de tienda", Want: "algo", SoThat: "algo"}}
	EnforceConsistency(stories, testCatalog(), nil)
	assert.Equal(t, "Administrador de tienda", stories[0].Role)
	assert.Empty(t, stories[0].Assumptions)
}

func TestActorNormalizedViaFunctionalityIntent(t *testing.T) {
	stories := []model.UserStory{{
		StoryID: "US-1",
		Role:    "empleado",
		Want:    "registrar pedidos nuevos de clientes",
		SoThat:  "tener control de ventas",
	}}
	EnforceConsistency(stories, testCatalog(), nil)
	assert.Equal(t, "Administrador de tienda", stories[0].Role)
	require.Len(t, stories[0].Assumptions, 1)
	assert.Contains(t, stories[0].Assumptions[0], "empleado")
}

func TestActorViaFunctionalitySkipsDanglingActor(t *testing.T) {
	reqs := &model.Requirements{
		Actors: []model.Actor{
			{ID: "a1", Name: "Administrador de tienda", Description: "gestiona el catálogo"},
		},
		Functionalities: []model.Functionality{
			// Best intent match, but its actor id resolves to nobody.
			{ID: "F-9", ActorID: "fantasma", Action: "registrar pedidos nuevos de clientes", UserGoal: "tener control de ventas", Benefit: ""},
			{ID: "F-1", ActorID: "a1", Action: "registrar pedidos nuevos", UserGoal: "registrar pedidos", Benefit: "ventas"},
		},
	}
	stories := []model.UserStory{{
		StoryID: "US-1",
		Role:    "empleado",
		Want:    "registrar pedidos nuevos de clientes",
		SoThat:  "tener control de ventas",
	}}

	EnforceConsistency(stories, reqs, nil)

	assert.Equal(t, "Administrador de tienda", stories[0].Role)
	require.Len(t, stories[0].Assumptions, 1)
	assert.Empty(t, stories[0].OpenQuestions)
}

func TestActorNormalizedViaNameDescription(t *testing.T) {
	stories := []model.UserStory{{
		StoryID: "US-1",
		Role:    "responsable de facturas de clientes",
		Want:    "sin relación con el catálogo",
		SoThat:  "nada parecido tampoco",
	}}
	EnforceConsistency(stories, testCatalog(), nil)
	assert.Equal(t, "Contable", stories[0].Role)
	require.Len(t, stories[0].Assumptions, 1)
}

func TestUnresolvedActorGetsOpenQuestion(t *testing.T) {
	stories := []model.UserStory{{
		StoryID: "US-1",
		Role:    "astronauta",
		Want:    "pilotar la nave espacial",
		SoThat:  "llegar a la estación orbital",
	}}
	EnforceConsistency(stories, testCatalog(), nil)
	assert.Equal(t, "astronauta", stories[0].Role)
	require.Len(t, stories[0].OpenQuestions, 1)
	assert.Contains(t, stories[0].OpenQuestions[0], "Administrador de tienda")
	assert.Contains(t, stories[0].OpenQuestions[0], "Contable")
}

func TestTraceabilityEnrichment(t *testing.T) {
	evidence := []store.Hit{
		{ChunkID: "c_9", Content: "el administrador registra pedidos nuevos de clientes para control de ventas"},
		{ChunkID: "c_1", Content: "texto sin ninguna relación con historias"},
	}
	stories := []model.UserStory{{
		StoryID:      "US-1",
		Title:        "Registrar pedido nuevo",
		Role:         "Administrador de tienda",
		Want:         "registrar pedidos nuevos de clientes",
		SoThat:       "control de ventas",
		Traceability: []model.Traceability{{ChunkID: "unknown", Confidence: 0.5}},
	}}

	EnforceConsistency(stories, testCatalog(), evidence)

	trace := stories[0].Traceability
	require.NotEmpty(t, trace)
	ids := map[string]bool{}
	for _, link := range trace {
		assert.GreaterOrEqual(t, link.Confidence, 0.50)
		assert.LessOrEqual(t, link.Confidence, 0.95)
		assert.False(t, ids[link.ChunkID], "duplicate chunk id")
		ids[link.ChunkID] = true
	}
	assert.True(t, ids["c_1"] || ids["c_2"], "functionality source chunks expected")
	assert.True(t, ids["c_9"], "direct evidence match expected")
	assert.LessOrEqual(t, len(trace), maxTraceLinks)
	assert.NotContains(t, ids, "unknown")
}

func TestTraceabilityUntouchedWhenNothingMatches(t *testing.T) {
	prior := []model.Traceability{{ChunkID: "c_prev", Confidence: 0.8}}
	stories := []model.UserStory{{
		StoryID:      "US-1",
		Title:        "xyz",
		Want:         "qqq",
		SoThat:       "zzz",
		Traceability: prior,
	}}

	EnforceConsistency(stories, &model.Requirements{}, nil)
	assert.Equal(t, prior, stories[0].Traceability)
}
