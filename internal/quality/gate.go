// Package quality is the deterministic gate: rule-based checks over a
// validated backlog that clamp the generative validator's score downward and
// append findings. No generative calls, fully reproducible.
package quality

import (
	"fmt"
	"strings"

	"storyforge/internal/model"
	"storyforge/internal/textsim"
)

// vagueVerbs are forbidden in a story's want text.
var vagueVerbs = []string{"gestionar", "permitir", "soportar", "manejar"}

// errorMarkers flag acceptance criteria that exercise a failure path.
var errorMarkers = []string{"error", "falla", "no "}

const genericRole = "usuario"

// Apply runs every check against the backlog, lowering report.Score and
// appending findings. The score never increases; checks are independent and
// may stack multiple findings on the same story.
func Apply(report *model.ValidationReport, backlog *model.Backlog, rawTextLen int) {
	minStories := max(3, rawTextLen/1200)
	if len(backlog.UserStories) < minStories {
		clamp(report, 80)
		report.Findings = append(report.Findings, model.ValidationFinding{
			Type:     model.FindingMissingFlow,
			Severity: model.SeverityMedium,
			Message: fmt.Sprintf("el backlog tiene %d historias; el documento sugiere al menos %d",
				len(backlog.UserStories), minStories),
		})
	}

	for _, story := range backlog.UserStories {
		if len(story.AcceptanceCriteria) < 5 {
			clamp(report, 75)
			report.Findings = append(report.Findings, finding(model.FindingWeakAC, model.SeverityMedium, story.StoryID,
				fmt.Sprintf("solo %d criterios de aceptación (mínimo 5)", len(story.AcceptanceCriteria))))
		}

		if !hasErrorCriterion(story.AcceptanceCriteria) {
			clamp(report, 85)
			report.Findings = append(report.Findings, finding(model.FindingMissingFlow, model.SeverityLow, story.StoryID,
				"ningún criterio de aceptación cubre un caso de error o fallo"))
		}

		if story.ValidNotesSections() < 2 {
			clamp(report, 80)
			report.Findings = append(report.Findings, finding(model.FindingMissingNotes, model.SeverityMedium, story.StoryID,
				"las notas tienen menos de 2 secciones con contenido"))
		}

		if textsim.Normalize(story.Role) == genericRole {
			clamp(report, 80)
			report.Findings = append(report.Findings, finding(model.FindingBadActor, model.SeverityMedium, story.StoryID,
				`el rol genérico "usuario" no identifica al actor del dominio`))
		}

		if verb := vagueVerbIn(story.Want); verb != "" {
			clamp(report, 85)
			report.Findings = append(report.Findings, finding(model.FindingAmbiguity, model.SeverityMedium, story.StoryID,
				fmt.Sprintf("el verbo %q es demasiado vago para una historia accionable", verb)))
		}
	}
}

func clamp(report *model.ValidationReport, ceiling float64) {
	if report.Score > ceiling {
		report.Score = ceiling
	}
}

func finding(t model.FindingType, sev model.Severity, storyID, msg string) model.ValidationFinding {
	return model.ValidationFinding{Type: t, Severity: sev, TargetID: storyID, Message: msg}
}

func hasErrorCriterion(criteria []string) bool {
	for _, c := range criteria {
		lower := strings.ToLower(c)
		for _, marker := range errorMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

func vagueVerbIn(want string) string {
	lower := strings.ToLower(want)
	for _, verb := range vagueVerbs {
		if strings.Contains(lower, verb) {
			return verb
		}
	}
	return ""
}
