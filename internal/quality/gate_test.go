package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storyforge/internal/model"
)

func goodStory(id string) model.UserStory {
	return model.UserStory{
		StoryID: id,
		Title:   "Registrar pedido de cliente",
		Role:    "administrador",
		Want:    "registrar un pedido con sus líneas",
		SoThat:  "quede constancia de la venta",
		NotesHu: []model.NotesSection{
			{Section: "Reglas de negocio", Bullets: []string{"el stock no puede ser negativo"}},
			{Section: "Casos de error", Bullets: []string{"pedido duplicado se rechaza"}},
		},
		AcceptanceCriteria: []string{
			"DADO un cliente activo CUANDO registra un pedido ENTONCES el sistema lo persiste",
			"DADO un pedido sin líneas CUANDO se envía ENTONCES el sistema muestra un error",
			"DADO stock insuficiente CUANDO se confirma ENTONCES el sistema no permite continuar",
			"DADO un pedido válido CUANDO se confirma ENTONCES se descuenta el stock",
			"DADO un cliente inactivo CUANDO intenta pedir ENTONCES el sistema rechaza la operación",
		},
		Traceability: []model.Traceability{{ChunkID: "c_1", Confidence: 0.8}},
	}
}

func backlogOf(stories ...model.UserStory) *model.Backlog {
	return &model.Backlog{DocumentID: "doc_1", VersionID: "v_1", GeneratedAt: "2026-01-01T00:00:00Z", UserStories: stories}
}

func TestCleanBacklogKeepsScore(t *testing.T) {
	report := &model.ValidationReport{Score: 92}
	Apply(report, backlogOf(goodStory("US-001"), goodStory("US-002"), goodStory("US-003")), 1000)
	assert.Equal(t, 92.0, report.Score)
	assert.Empty(t, report.Findings)
}

func TestFourCriteriaAlwaysClampsTo75(t *testing.T) {
	story := goodStory("US-001")
	story.AcceptanceCriteria = story.AcceptanceCriteria[:4]

	report := &model.ValidationReport{Score: 98}
	Apply(report, backlogOf(story, goodStory("US-002"), goodStory("US-003")), 1000)

	assert.Equal(t, 75.0, report.Score)
	assert.Equal(t, model.FindingWeakAC, report.Findings[0].Type)
	assert.Equal(t, "US-001", report.Findings[0].TargetID)
}

func TestScoreNeverRaised(t *testing.T) {
	story := goodStory("US-001")
	story.AcceptanceCriteria = story.AcceptanceCriteria[:4]

	report := &model.ValidationReport{Score: 50}
	Apply(report, backlogOf(story, goodStory("US-002"), goodStory("US-003")), 1000)
	assert.Equal(t, 50.0, report.Score)
}

func TestMinStoriesFromRawLength(t *testing.T) {
	report := &model.ValidationReport{Score: 95}
	// 12000 chars → at least 10 stories expected.
	Apply(report, backlogOf(goodStory("US-001"), goodStory("US-002"), goodStory("US-003")), 12000)

	assert.Equal(t, 80.0, report.Score)
	assert.Equal(t, model.FindingMissingFlow, report.Findings[0].Type)
}

func TestMissingErrorCriterion(t *testing.T) {
	story := goodStory("US-001")
	story.AcceptanceCriteria = []string{
		"DADO un cliente activo CUANDO registra un pedido ENTONCES el sistema lo persiste",
		"DADO un pedido válido CUANDO se confirma ENTONCES se descuenta el stock",
		"DADO un pedido confirmado CUANDO se consulta ENTONCES se muestra el detalle",
		"DADO un pedido confirmado CUANDO se factura ENTONCES se genera la factura",
		"DADO un pedido facturado CUANDO se consulta ENTONCES aparece como cerrado",
	}

	report := &model.ValidationReport{Score: 95}
	Apply(report, backlogOf(story, goodStory("US-002"), goodStory("US-003")), 1000)

	assert.Equal(t, 85.0, report.Score)
	assert.Equal(t, model.FindingMissingFlow, report.Findings[0].Type)
	assert.Equal(t, model.SeverityLow, report.Findings[0].Severity)
}

func TestGenericRoleDetectedWithDiacritics(t *testing.T) {
	story := goodStory("US-001")
	story.Role = "Usuário"

	report := &model.ValidationReport{Score: 95}
	Apply(report, backlogOf(story, goodStory("US-002"), goodStory("US-003")), 1000)

	assert.Equal(t, 80.0, report.Score)
	assert.Equal(t, model.FindingBadActor, report.Findings[0].Type)
}

func TestVagueVerb(t *testing.T) {
	story := goodStory("US-001")
	story.Want = "gestionar los pedidos del sistema"

	report := &model.ValidationReport{Score: 95}
	Apply(report, backlogOf(story, goodStory("US-002"), goodStory("US-003")), 1000)

	assert.Equal(t, 85.0, report.Score)
	assert.Equal(t, model.FindingAmbiguity, report.Findings[0].Type)
	assert.Contains(t, report.Findings[0].Message, "gestionar")
}

func TestWeakNotes(t *testing.T) {
	story := goodStory("US-001")
	story.NotesHu = []model.NotesSection{{Section: "Reglas", Bullets: []string{"una"}}}

	report := &model.ValidationReport{Score: 95}
	Apply(report, backlogOf(story, goodStory("US-002"), goodStory("US-003")), 1000)

	assert.Equal(t, 80.0, report.Score)
	assert.Equal(t, model.FindingMissingNotes, report.Findings[0].Type)
}

func TestMultipleFindingsStack(t *testing.T) {
	story := goodStory("US-001")
	story.Role = "usuario"
	story.Want = "manejar el inventario"
	story.AcceptanceCriteria = story.AcceptanceCriteria[:3]

	report := &model.ValidationReport{Score: 95}
	Apply(report, backlogOf(story, goodStory("US-002"), goodStory("US-003")), 1000)

	assert.Equal(t, 75.0, report.Score)
	assert.GreaterOrEqual(t, len(report.Findings), 3)
}
