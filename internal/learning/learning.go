// Package learning keeps the cross-run calibration profile: running averages
// over qualifying runs plus role/notes-section frequency counters, surfaced
// back into prompts as guidance text and into target sizing.
package learning

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"storyforge/internal/model"
	"storyforge/internal/store"
)

// Stats are the four running averages tracked per profile.
type Stats struct {
	TargetStoriesAvg   float64 `json:"targetStoriesAvg"`
	TargetAcAvg        float64 `json:"targetAcAvg"`
	ValidationScoreAvg float64 `json:"validationScoreAvg"`
	QualityScoreAvg    float64 `json:"qualityScoreAvg"`
}

// Profile is the durable learning state. Created empty on first access and
// never deleted.
type Profile struct {
	Runs              int            `json:"runs"`
	Stats             Stats          `json:"stats"`
	RoleCounts        map[string]int `json:"roleCounts"`
	NotesSectionCount map[string]int `json:"notesSectionCounts"`
}

func emptyProfile() Profile {
	return Profile{
		RoleCounts:        map[string]int{},
		NotesSectionCount: map[string]int{},
	}
}

// UpdateInput describes one finished run offered to the profile. StoryCount
// and AvgCriteria describe the generated backlog; a non-empty Expected set is
// the calibration ground truth and overrides both, the same precedence the
// role/notes counters follow.
type UpdateInput struct {
	StoryCount      int
	AvgCriteria     float64
	ValidationScore float64
	QualityScore    float64
	Generated       []model.UserStory
	Expected        []model.ExpectedStory
	// ForceAccept bypasses the quality/validation thresholds; set when a
	// human explicitly approved the correction set.
	ForceAccept bool
}

// UpdateResult reports whether the profile changed and why not.
type UpdateResult struct {
	Updated bool   `json:"updated"`
	Reason  string `json:"reason,omitempty"`
	Runs    int    `json:"runs"`
}

// Thresholds gate profile updates.
type Thresholds struct {
	MinQualityScore    float64
	MinValidationScore float64
}

// DefaultThresholds mirror the shipped configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{MinQualityScore: 0.55, MinValidationScore: 75}
}

// Store persists the profile through a read-modify-write JSON file. Injected
// into the pipeline, never a package-level singleton, so tests can run
// against a temp directory.
type Store struct {
	file       *store.JSONFile[Profile]
	thresholds Thresholds
	log        *zap.Logger
}

// NewStore opens (lazily creating) the profile at path.
func NewStore(path string, thresholds Thresholds, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		file:       store.NewJSONFile(path, emptyProfile),
		thresholds: thresholds,
		log:        log.Named("learning"),
	}
}

// Profile returns the current state.
func (s *Store) Profile() (Profile, error) {
	return s.file.Read()
}

// Update offers one run's outcome to the profile. The update commits only
// when both scores clear their thresholds, unless ForceAccept is set.
func (s *Store) Update(in UpdateInput) (UpdateResult, error) {
	if !in.ForceAccept {
		if in.QualityScore < s.thresholds.MinQualityScore {
			return UpdateResult{Reason: fmt.Sprintf("quality score %.3f below minimum %.2f", in.QualityScore, s.thresholds.MinQualityScore)}, nil
		}
		if in.ValidationScore < s.thresholds.MinValidationScore {
			return UpdateResult{Reason: fmt.Sprintf("validation score %.1f below minimum %.1f", in.ValidationScore, s.thresholds.MinValidationScore)}, nil
		}
	}

	storyCount := float64(in.StoryCount)
	avgCriteria := in.AvgCriteria
	if len(in.Expected) > 0 {
		storyCount = float64(len(in.Expected))
		avgCriteria = expectedAvgCriteria(in.Expected)
	}

	profile, err := s.file.Update(func(p Profile) (Profile, error) {
		if p.RoleCounts == nil {
			p.RoleCounts = map[string]int{}
		}
		if p.NotesSectionCount == nil {
			p.NotesSectionCount = map[string]int{}
		}

		p.Runs++
		n := p.Runs
		p.Stats.TargetStoriesAvg = runningAvg(p.Stats.TargetStoriesAvg, storyCount, n)
		p.Stats.TargetAcAvg = runningAvg(p.Stats.TargetAcAvg, avgCriteria, n)
		p.Stats.ValidationScoreAvg = runningAvg(p.Stats.ValidationScoreAvg, in.ValidationScore, n)
		p.Stats.QualityScoreAvg = runningAvg(p.Stats.QualityScoreAvg, in.QualityScore, n)

		// Counters prefer the human/reference stories when present.
		if len(in.Expected) > 0 {
			for _, st := range in.Expected {
				countRole(p.RoleCounts, st.Role)
				for _, line := range strings.Split(st.NotesHu, "\n") {
					if section, ok := noteSectionTitle(line); ok {
						p.NotesSectionCount[section]++
					}
				}
			}
		} else {
			for _, st := range in.Generated {
				countRole(p.RoleCounts, st.Role)
				for _, sec := range st.NotesHu {
					title := strings.TrimSpace(sec.Section)
					if title != "" {
						p.NotesSectionCount[strings.ToLower(title)]++
					}
				}
			}
		}
		return p, nil
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("updating learning profile: %w", err)
	}

	s.log.Info("learning profile updated",
		zap.Int("runs", profile.Runs),
		zap.Float64("target_stories_avg", profile.Stats.TargetStoriesAvg),
		zap.Bool("force_accept", in.ForceAccept))

	return UpdateResult{Updated: true, Runs: profile.Runs}, nil
}

// SuggestTarget is the learned story target: the rounded running average, or
// 0 when no run has been recorded yet.
func (p Profile) SuggestTarget() int {
	if p.Runs < 1 {
		return 0
	}
	return int(math.Round(p.Stats.TargetStoriesAvg))
}

// GuidanceText renders the top-6 roles and notes sections as prompt guidance.
// Empty profile yields the empty string.
func (p Profile) GuidanceText() string {
	roles := topKeys(p.RoleCounts, 6)
	sections := topKeys(p.NotesSectionCount, 6)
	if len(roles) == 0 && len(sections) == 0 {
		return ""
	}

	var b strings.Builder
	if len(roles) > 0 {
		b.WriteString("Roles preferidos (por frecuencia): ")
		b.WriteString(strings.Join(roles, ", "))
		b.WriteString("\n")
	}
	if len(sections) > 0 {
		b.WriteString("Secciones de notas habituales: ")
		b.WriteString(strings.Join(sections, ", "))
		b.WriteString("\n")
	}
	if p.Stats.TargetAcAvg > 0 {
		fmt.Fprintf(&b, "Criterios de aceptación por historia (media observada): %.1f\n", p.Stats.TargetAcAvg)
	}
	return strings.TrimSpace(b.String())
}

func expectedAvgCriteria(stories []model.ExpectedStory) float64 {
	if len(stories) == 0 {
		return 0
	}
	total := 0
	for _, s := range stories {
		total += len(s.AcceptanceCriteria)
	}
	return float64(total) / float64(len(stories))
}

func runningAvg(avg, value float64, n int) float64 {
	if n <= 1 {
		return value
	}
	return (avg*float64(n-1) + value) / float64(n)
}

func countRole(counts map[string]int, role string) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "" {
		counts[role]++
	}
}

// noteSectionTitle recognizes "Sección: detalle" lines in flattened notes.
func noteSectionTitle(line string) (string, bool) {
	head, _, found := strings.Cut(line, ":")
	head = strings.TrimSpace(head)
	if !found || head == "" || len(head) > 60 {
		return "", false
	}
	return strings.ToLower(head), true
}

func topKeys(counts map[string]int, k int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	return keys
}
