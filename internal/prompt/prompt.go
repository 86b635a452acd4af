// Package prompt builds the Spanish instruction blocks sent to the language
// model at each pipeline stage. Builders are pure string assembly; callers
// own the evidence context and learned guidance they inject.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyforge/internal/model"
)

// SystemPolicy is the shared system instruction for every generation call.
const SystemPolicy = `Eres un analista de producto senior especializado en backlogs de desarrollo.
Trabajas siempre en español y produces únicamente JSON válido, sin texto adicional ni markdown.
Reglas obligatorias:
- Cada historia de usuario sigue el formato "Como <rol>, quiero <capacidad>, para <beneficio>".
- El rol nunca es el genérico "usuario": usa siempre el actor concreto del dominio.
- Cada criterio de aceptación usa el formato Gherkin en español: "DADO <contexto> CUANDO <acción> ENTONCES <resultado>".
- Los verbos vagos (gestionar, permitir, soportar, manejar) están prohibidos en los títulos.
- Toda afirmación debe estar respaldada por la evidencia del documento; no inventes funcionalidades.`

// Analysis asks for the functionality/actor catalog of the document.
func Analysis(evidence, rawText string) string {
	var b strings.Builder
	b.WriteString(`Analiza el siguiente documento de requisitos y extrae su catálogo estructurado.

Devuelve un único objeto JSON con esta forma exacta:
{
  "actors": [{"id": "...", "name": "...", "description": "..."}],
  "functionalities": [
    {
      "id": "F-001",
      "actorId": "...",
      "action": "...",
      "userGoal": "...",
      "benefit": "...",
      "category": "functional|integration|security|data|nfr|flows",
      "validations": ["..."],
      "sourceChunkIds": ["c_..."]
    }
  ],
  "glossary": [{"term": "...", "definition": "..."}],
  "openQuestions": ["..."]
}

Criterios:
- Identifica TODOS los actores concretos (roles humanos y sistemas externos).
- Cada funcionalidad es una capacidad atómica y observable, asignada a su actor.
- Los sourceChunkIds referencian los ids de la evidencia recuperada.
- El glosario recoge términos del dominio presentes en el documento.
`)
	writeEvidence(&b, evidence)
	writeDocument(&b, rawText)
	return b.String()
}

// ExtractionParams feed the initial backlog generation prompt.
type ExtractionParams struct {
	Evidence     string
	RawText      string
	Catalog      *model.Requirements
	TargetCount  int
	ActorGuide   string
	LearnedHints string
	StyleGuide   string
	Constraints  string
	FocusAreas   []string
}

// Extraction builds the initial story-generation prompt.
func Extraction(p ExtractionParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Genera el backlog completo de historias de usuario para el documento analizado.

Objetivo: aproximadamente %d historias que cubran todas las funcionalidades detectadas.

Devuelve un único objeto JSON:
{
  "userStories": [
    {
      "storyId": "US-001",
      "epic": "...",
      "title": "...",
      "role": "...",
      "want": "...",
      "soThat": "...",
      "notesHu": [{"section": "Reglas de negocio", "bullets": ["..."]}],
      "acceptanceCriteria": ["DADO ... CUANDO ... ENTONCES ...", "... (mínimo 5)"],
      "traceability": [{"chunkId": "c_...", "confidence": 0.8}],
      "assumptions": ["..."],
      "openQuestions": ["..."]
    }
  ]
}

Reglas:
- Mínimo 5 criterios de aceptación por historia, todos en formato DADO/CUANDO/ENTONCES.
- Al menos un criterio por historia debe cubrir un caso de error o fallo.
- notesHu debe tener al menos 2 secciones con viñetas reales extraídas del documento.
- La trazabilidad referencia los ids de los fragmentos de evidencia recuperada.
`, p.TargetCount)

	if p.ActorGuide != "" {
		b.WriteString("\nActores del dominio (usa exactamente estos roles):\n")
		b.WriteString(p.ActorGuide)
		b.WriteString("\n")
	}
	if p.Catalog != nil {
		b.WriteString("\nCatálogo de funcionalidades:\n")
		writeJSON(&b, p.Catalog)
	}
	if len(p.FocusAreas) > 0 {
		b.WriteString("\nÁreas que requieren cobertura explícita:\n")
		for _, area := range p.FocusAreas {
			fmt.Fprintf(&b, "- %s\n", area)
		}
	}
	writeGuidance(&b, p.LearnedHints, p.StyleGuide, p.Constraints)
	writeEvidence(&b, p.Evidence)
	writeDocument(&b, p.RawText)
	return b.String()
}

// RefinementParams feed a refinement pass: grow the backlog toward the
// target count and, when findings are supplied, repair them in place.
type RefinementParams struct {
	Stories      []model.UserStory
	Target       int
	Pass         int
	MaxPasses    int
	Report       *model.ValidationReport
	Evidence     string
	ActorGuide   string
	LearnedHints string
	StyleGuide   string
	Constraints  string
}

// Refinement builds the grow-or-repair prompt over the current story set.
func Refinement(p RefinementParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Refina el backlog de historias de usuario (pase %d de %d).

El backlog actual tiene %d historias y el objetivo son aproximadamente %d.
Conserva las historias correctas con sus storyId; añade las historias que falten
para alcanzar el objetivo cubriendo funcionalidades aún sin historia.

Devuelve el backlog COMPLETO como un único objeto JSON con la clave "userStories",
con la misma forma de historia (mínimo 5 criterios DADO/CUANDO/ENTONCES, notesHu
con 2+ secciones y trazabilidad incluidas).
`, p.Pass, p.MaxPasses, len(p.Stories), p.Target)

	if p.Report != nil && len(p.Report.Findings) > 0 {
		b.WriteString("\nCorrige además estos hallazgos de validación:\n")
		for _, f := range p.Report.Findings {
			fmt.Fprintf(&b, "- [%s/%s] %s: %s", f.Type, f.Severity, f.TargetID, f.Message)
			if f.SuggestedFix != "" {
				fmt.Fprintf(&b, " (sugerencia: %s)", f.SuggestedFix)
			}
			b.WriteString("\n")
		}
	}
	if p.ActorGuide != "" {
		b.WriteString("\nActores válidos del dominio:\n")
		b.WriteString(p.ActorGuide)
		b.WriteString("\n")
	}
	writeGuidance(&b, p.LearnedHints, p.StyleGuide, p.Constraints)

	b.WriteString("\nBacklog actual:\n")
	writeJSON(&b, map[string]any{"userStories": p.Stories})
	writeEvidence(&b, p.Evidence)
	return b.String()
}

// GapCoverageParams feed the single gap-filling pass.
type GapCoverageParams struct {
	Backlog     *model.Backlog
	Uncovered   []model.Functionality
	Evidence    string
	ActorGuide  string
	Constraints string
}

// GapCoverage asks for additional stories covering the listed functionalities.
func GapCoverage(p GapCoverageParams) string {
	var b strings.Builder
	b.WriteString(`El backlog actual no cubre todas las funcionalidades del documento.
Genera historias de usuario ADICIONALES que cubran exclusivamente las funcionalidades listadas.

Devuelve un único objeto JSON: {"additionalUserStories": [...]} con la misma forma de historia
que el backlog (mínimo 5 criterios DADO/CUANDO/ENTONCES, notesHu y trazabilidad incluidas).
No repitas historias ya existentes.

Funcionalidades sin cobertura:
`)
	for _, fn := range p.Uncovered {
		fmt.Fprintf(&b, "- %s: %s — %s\n", fn.ID, fn.Action, fn.UserGoal)
	}
	if p.ActorGuide != "" {
		b.WriteString("\nActores válidos del dominio:\n")
		b.WriteString(p.ActorGuide)
		b.WriteString("\n")
	}
	if p.Constraints != "" {
		b.WriteString("\nRestricciones:\n")
		b.WriteString(p.Constraints)
		b.WriteString("\n")
	}
	b.WriteString("\nHistorias existentes (títulos):\n")
	if p.Backlog != nil {
		for _, s := range p.Backlog.UserStories {
			fmt.Fprintf(&b, "- %s (%s)\n", s.Title, s.StoryID)
		}
	}
	writeEvidence(&b, p.Evidence)
	return b.String()
}

// Validation builds the judge prompt over a backlog.
func Validation(backlog *model.Backlog, catalog *model.Requirements, evidence string) string {
	var b strings.Builder
	b.WriteString(`Evalúa la calidad del siguiente backlog de historias de usuario.

Devuelve un único objeto JSON:
{
  "score": 0-100,
  "findings": [
    {
      "type": "<tipo>",
      "severity": "low|medium|high",
      "targetId": "US-001",
      "message": "...",
      "suggestedFix": "...",
      "evidenceChunkIds": ["c_..."]
    }
  ],
  "summary": "..."
}

Tipos de hallazgo permitidos: duplicate, ambiguity, unsupported, contradiction, non_testable,
missing_flow, too_large, bad_format, bad_actor, missing_notes, weak_ac.

Evalúa: formato Como/Quiero/Para, criterios DADO/CUANDO/ENTONCES, cobertura del catálogo,
actores concretos, casos de error, notas con contenido real y trazabilidad coherente.
Sé estricto: un backlog sin hallazgos es excepcional.
`)
	if catalog != nil {
		b.WriteString("\nCatálogo de funcionalidades a cubrir:\n")
		writeJSON(&b, catalog)
	}
	b.WriteString("\nBacklog a evaluar:\n")
	writeJSON(&b, backlog)
	writeEvidence(&b, evidence)
	return b.String()
}

func writeGuidance(b *strings.Builder, hints, style, constraints string) {
	if hints != "" {
		b.WriteString("\nPreferencias aprendidas de ejecuciones anteriores:\n")
		b.WriteString(hints)
		b.WriteString("\n")
	}
	if style != "" {
		b.WriteString("\nGuía de estilo del backlog de referencia:\n")
		b.WriteString(style)
		b.WriteString("\n")
	}
	if constraints != "" {
		b.WriteString("\nRestricciones obligatorias:\n")
		b.WriteString(constraints)
		b.WriteString("\n")
	}
}

func writeEvidence(b *strings.Builder, evidence string) {
	if evidence == "" {
		return
	}
	b.WriteString("\n=== EVIDENCIA RECUPERADA ===\n")
	b.WriteString(evidence)
	b.WriteString("\n")
}

const maxInlineDocument = 24000

func writeDocument(b *strings.Builder, rawText string) {
	if rawText == "" {
		return
	}
	if len(rawText) > maxInlineDocument {
		rawText = rawText[:maxInlineDocument] + "\n[... documento truncado ...]"
	}
	b.WriteString("\n=== DOCUMENTO ===\n")
	b.WriteString(rawText)
	b.WriteString("\n")
}

func writeJSON(b *strings.Builder, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b.WriteString("{}")
		return
	}
	b.Write(data)
	b.WriteString("\n")
}
