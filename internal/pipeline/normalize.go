package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyforge/internal/llm"
	"storyforge/internal/model"
)

// fallbackCriterion pads stories that arrive with too few criteria.
const fallbackCriterion = "DADO un contexto valido CUANDO se ejecuta la accion ENTONCES el sistema responde segun la regla definida."

const minCriteria = 5

// flexTrace tolerates the traceability shapes models actually emit: a bare
// chunk-id string, an object with optional confidence, or garbage.
type flexTrace struct {
	model.Traceability
}

func (t *flexTrace) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Traceability = model.Traceability{ChunkID: strings.TrimSpace(s), Confidence: 0.8}
		return nil
	}

	var obj struct {
		ChunkID    string   `json:"chunkId"`
		ID         string   `json:"id"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		id := strings.TrimSpace(obj.ChunkID)
		if id == "" {
			id = strings.TrimSpace(obj.ID)
		}
		if id != "" {
			conf := 0.8
			if obj.Confidence != nil {
				conf = *obj.Confidence
			}
			t.Traceability = model.Traceability{ChunkID: id, Confidence: conf}
			return nil
		}
	}

	t.Traceability = model.Traceability{ChunkID: "unknown", Confidence: 0.5}
	return nil
}

// flexCriterion tolerates criteria as strings or given/when/then objects.
type flexCriterion string

func (c *flexCriterion) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = flexCriterion(strings.TrimSpace(s))
		return nil
	}

	var obj struct {
		Given    string `json:"given"`
		When     string `json:"when"`
		Then     string `json:"then"`
		Dado     string `json:"dado"`
		Cuando   string `json:"cuando"`
		Entonces string `json:"entonces"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*c = ""
		return nil
	}
	given := firstNonEmpty(obj.Given, obj.Dado)
	when := firstNonEmpty(obj.When, obj.Cuando)
	then := firstNonEmpty(obj.Then, obj.Entonces)
	if given == "" && when == "" && then == "" {
		*c = ""
		return nil
	}
	*c = flexCriterion(strings.TrimSpace(fmt.Sprintf("DADO %s CUANDO %s ENTONCES %s", given, when, then)))
	return nil
}

// flexNotes accepts notesHu as an ordered section list or as a plain map.
type flexNotes []model.NotesSection

func (n *flexNotes) UnmarshalJSON(data []byte) error {
	var sections []model.NotesSection
	if err := json.Unmarshal(data, &sections); err == nil {
		*n = sections
		return nil
	}

	var m map[string][]string
	if err := json.Unmarshal(data, &m); err == nil {
		out := make([]model.NotesSection, 0, len(m))
		for section, bullets := range m {
			out = append(out, model.NotesSection{Section: section, Bullets: bullets})
		}
		*n = out
		return nil
	}

	*n = nil
	return nil
}

// rawStory is the lenient wire shape of one generated story.
type rawStory struct {
	StoryID            string          `json:"storyId"`
	ID                 string          `json:"id"`
	Epic               string          `json:"epic"`
	Title              string          `json:"title"`
	Role               string          `json:"role"`
	Want               string          `json:"want"`
	SoThat             string          `json:"soThat"`
	NotesHu            flexNotes       `json:"notesHu"`
	Notes              flexNotes       `json:"notes"`
	AcceptanceCriteria []flexCriterion `json:"acceptanceCriteria"`
	Traceability       []flexTrace     `json:"traceability"`
	Assumptions        []string        `json:"assumptions"`
	OpenQuestions      []string        `json:"openQuestions"`
}

// decodeStories parses a completion's text into normalized stories, accepting
// a bare array or an object keyed userStories / stories / additionalUserStories.
func decodeStories(text string) ([]model.UserStory, error) {
	raw, err := llm.FirstJSON(text)
	if err != nil {
		return nil, err
	}

	var arr []rawStory
	if err := json.Unmarshal(raw, &arr); err == nil {
		return normalizeStories(arr), nil
	}

	var obj struct {
		UserStories           []rawStory `json:"userStories"`
		Stories               []rawStory `json:"stories"`
		AdditionalUserStories []rawStory `json:"additionalUserStories"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("unexpected story payload shape: %w", err)
	}

	switch {
	case len(obj.UserStories) > 0:
		return normalizeStories(obj.UserStories), nil
	case len(obj.Stories) > 0:
		return normalizeStories(obj.Stories), nil
	case len(obj.AdditionalUserStories) > 0:
		return normalizeStories(obj.AdditionalUserStories), nil
	}
	return nil, nil
}

func normalizeStories(raws []rawStory) []model.UserStory {
	out := make([]model.UserStory, 0, len(raws))
	for i, r := range raws {
		out = append(out, normalizeStory(r, i))
	}
	return out
}

func normalizeStory(r rawStory, index int) model.UserStory {
	id := strings.TrimSpace(r.StoryID)
	if id == "" {
		id = strings.TrimSpace(r.ID)
	}
	if id == "" {
		id = fmt.Sprintf("US-%03d", index+1)
	}

	notes := r.NotesHu
	if len(notes) == 0 {
		notes = r.Notes
	}
	cleanNotes := make([]model.NotesSection, 0, len(notes))
	for _, sec := range notes {
		title := strings.TrimSpace(sec.Section)
		bullets := make([]string, 0, len(sec.Bullets))
		for _, b := range sec.Bullets {
			if b = strings.TrimSpace(b); b != "" {
				bullets = append(bullets, b)
			}
		}
		if title != "" && len(bullets) > 0 {
			cleanNotes = append(cleanNotes, model.NotesSection{Section: title, Bullets: bullets})
		}
	}
	if len(cleanNotes) == 0 {
		cleanNotes = []model.NotesSection{{Section: "Notas", Bullets: []string{"sin notas adicionales"}}}
	}

	criteria := make([]string, 0, len(r.AcceptanceCriteria))
	for _, c := range r.AcceptanceCriteria {
		if s := strings.TrimSpace(string(c)); s != "" {
			criteria = append(criteria, s)
		}
	}
	for len(criteria) < minCriteria {
		criteria = append(criteria, fallbackCriterion)
	}

	trace := make([]model.Traceability, 0, len(r.Traceability))
	for _, t := range r.Traceability {
		trace = append(trace, t.Traceability)
	}
	if len(trace) == 0 {
		trace = []model.Traceability{{ChunkID: "unknown", Confidence: 0.5}}
	}

	return model.UserStory{
		StoryID:            id,
		Epic:               strings.TrimSpace(r.Epic),
		Title:              strings.TrimSpace(r.Title),
		Role:               strings.TrimSpace(r.Role),
		Want:               strings.TrimSpace(r.Want),
		SoThat:             strings.TrimSpace(r.SoThat),
		NotesHu:            cleanNotes,
		AcceptanceCriteria: criteria,
		Traceability:       trace,
		Assumptions:        r.Assumptions,
		OpenQuestions:      r.OpenQuestions,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
