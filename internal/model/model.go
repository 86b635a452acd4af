// Package model defines the backlog artifacts exchanged between the pipeline
// stages: functionality catalogs, user stories, validation reports and the
// reference stories used for evaluation.
package model

import "strings"

// Actor is a role/persona referenced by functionalities and stories. The
// canonical actor name is what story roles get normalized against.
type Actor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Functionality is one atomic, observable system capability extracted from
// the evidence. Immutable once produced.
type Functionality struct {
	ID             string   `json:"id"`
	ActorID        string   `json:"actorId"`
	Action         string   `json:"action"`
	UserGoal       string   `json:"userGoal"`
	Benefit        string   `json:"benefit"`
	Category       string   `json:"category"`
	Validations    []string `json:"validations"`
	SourceChunkIDs []string `json:"sourceChunkIds"`
}

// MatchText is the text used for actor matching (action + goal + benefit).
func (f Functionality) MatchText() string {
	return strings.TrimSpace(f.Action + " " + f.UserGoal + " " + f.Benefit)
}

// FullText additionally includes the validations; used for coverage and
// traceability scoring.
func (f Functionality) FullText() string {
	return strings.TrimSpace(f.MatchText() + " " + strings.Join(f.Validations, " "))
}

// GlossaryEntry is a term definition produced by the functionality extractor.
type GlossaryEntry struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Requirements is the functionality catalog produced once per run by the
// extractor (generative call #1).
type Requirements struct {
	Actors          []Actor         `json:"actors"`
	Functionalities []Functionality `json:"functionalities"`
	Glossary        []GlossaryEntry `json:"glossary"`
	OpenQuestions   []string        `json:"openQuestions"`
}

// Traceability links a story to a source evidence chunk.
type Traceability struct {
	ChunkID    string  `json:"chunkId" validate:"required"`
	Confidence float64 `json:"confidence" validate:"min=0,max=1"`
}

// NotesSection is one titled bullet list inside a story's notes.
type NotesSection struct {
	Section string   `json:"section" validate:"min=2"`
	Bullets []string `json:"bullets" validate:"min=1,dive,min=3"`
}

// UserStory is one backlog item. Mutated in place by the consistency
// enforcer, then frozen once the backlog passes schema validation.
type UserStory struct {
	StoryID            string         `json:"storyId" validate:"required"`
	Epic               string         `json:"epic,omitempty"`
	Title              string         `json:"title" validate:"min=3"`
	Role               string         `json:"role" validate:"min=2"`
	Want               string         `json:"want" validate:"min=3"`
	SoThat             string         `json:"soThat" validate:"min=3"`
	NotesHu            []NotesSection `json:"notesHu" validate:"min=1,dive"`
	AcceptanceCriteria []string       `json:"acceptanceCriteria" validate:"min=3,dive,min=10"`
	Traceability       []Traceability `json:"traceability" validate:"min=1,dive"`
	Assumptions        []string       `json:"assumptions"`
	OpenQuestions      []string       `json:"openQuestions"`
}

// KeyText is the intent key used by deduplication (role + title + want).
func (s UserStory) KeyText() string {
	return strings.TrimSpace(s.Role + " " + s.Title + " " + s.Want)
}

// BodyText combines title, want, soThat and the acceptance criteria; used by
// coverage and traceability scoring.
func (s UserStory) BodyText() string {
	return strings.TrimSpace(s.Title + " " + s.Want + " " + s.SoThat + " " +
		strings.Join(s.AcceptanceCriteria, " "))
}

// IntentText is the text matched against functionalities when normalizing
// the actor (want + soThat).
func (s UserStory) IntentText() string {
	return strings.TrimSpace(s.Want + " " + s.SoThat)
}

// ValidNotesSections counts notes sections with a non-empty title and at
// least one non-blank bullet.
func (s UserStory) ValidNotesSections() int {
	count := 0
	for _, n := range s.NotesHu {
		if strings.TrimSpace(n.Section) == "" {
			continue
		}
		for _, b := range n.Bullets {
			if strings.TrimSpace(b) != "" {
				count++
				break
			}
		}
	}
	return count
}

// Backlog is the full output artifact of one run.
type Backlog struct {
	DocumentID  string      `json:"documentId" validate:"required"`
	VersionID   string      `json:"versionId" validate:"required"`
	GeneratedAt string      `json:"generatedAt" validate:"required"`
	UserStories []UserStory `json:"userStories" validate:"min=1,dive"`
}

// ExpectedStory is a golden/reference story used for evaluation, learning
// calibration and feedback. Notes arrive flattened as multi-line text.
type ExpectedStory struct {
	Epic               string   `json:"epic"`
	StoryID            string   `json:"storyId"`
	Title              string   `json:"title"`
	Role               string   `json:"role"`
	Want               string   `json:"want"`
	SoThat             string   `json:"soThat"`
	NotesHu            string   `json:"notesHu"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
}
