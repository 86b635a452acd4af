// Package golden imports reference backlogs from spreadsheets. Golden
// stories feed evaluation, target sizing and a derived style guide; their
// content is never copied into generated output.
package golden

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"storyforge/internal/model"
)

// columnAliases map normalized header names to logical columns.
var columnAliases = map[string]string{
	"epica":                   "epic",
	"epic":                    "epic",
	"id":                      "id",
	"id historia":             "id",
	"storyid":                 "id",
	"titulo":                  "title",
	"title":                   "title",
	"historia":                "title",
	"historia de usuario":     "description",
	"descripcion":             "description",
	"description":             "description",
	"notas":                   "notes",
	"notas hu":                "notes",
	"notes":                   "notes",
	"criterios":               "criteria",
	"criterios de aceptacion": "criteria",
	"acceptance criteria":     "criteria",
}

var (
	comoRe   = regexp.MustCompile(`(?is)como\s+(.+?)\s*,?\s*quiero`)
	quieroRe = regexp.MustCompile(`(?is)quiero\s+(.+?)\s*,?\s*para`)
	paraRe   = regexp.MustCompile(`(?is)para\s+(.+?)\s*$`)
)

// Load reads every story row from the first sheet of an xlsx workbook.
func Load(path string) ([]model.ExpectedStory, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, header := range rows[0] {
		if logical, ok := columnAliases[normalizeHeader(header)]; ok {
			if _, taken := cols[logical]; !taken {
				cols[logical] = i
			}
		}
	}

	var stories []model.ExpectedStory
	for _, row := range rows[1:] {
		story := model.ExpectedStory{
			Epic:    cell(row, cols, "epic"),
			StoryID: cell(row, cols, "id"),
			Title:   cell(row, cols, "title"),
			NotesHu: cell(row, cols, "notes"),
		}

		if desc := cell(row, cols, "description"); desc != "" {
			story.Role, story.Want, story.SoThat = parseDescription(desc)
		}
		if criteria := cell(row, cols, "criteria"); criteria != "" {
			for _, line := range strings.Split(criteria, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					story.AcceptanceCriteria = append(story.AcceptanceCriteria, line)
				}
			}
		}

		if story.Title == "" && story.Want == "" {
			continue
		}
		stories = append(stories, story)
	}
	return stories, nil
}

// LoadDir loads every .xlsx file in dir, concatenated in filename order.
// A missing directory is not an error; golden stories are optional.
func LoadDir(dir string) ([]model.ExpectedStory, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading golden dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".xlsx") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []model.ExpectedStory
	for _, name := range names {
		stories, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, stories...)
	}
	return all, nil
}

// StyleGuide derives prompt guidance from the reference set: dominant roles,
// habitual notes sections, observed criteria density and two form templates.
func StyleGuide(stories []model.ExpectedStory) string {
	if len(stories) == 0 {
		return ""
	}

	roleCounts := map[string]int{}
	sectionCounts := map[string]int{}
	totalCriteria := 0
	for _, s := range stories {
		if role := strings.ToLower(strings.TrimSpace(s.Role)); role != "" {
			roleCounts[role]++
		}
		for _, line := range strings.Split(s.NotesHu, "\n") {
			if head, _, ok := strings.Cut(line, ":"); ok {
				if head = strings.TrimSpace(head); head != "" && len(head) <= 60 {
					sectionCounts[strings.ToLower(head)]++
				}
			}
		}
		totalCriteria += len(s.AcceptanceCriteria)
	}

	var b strings.Builder
	b.WriteString("Estilo del backlog de referencia:\n")
	if roles := topKeys(roleCounts, 6); len(roles) > 0 {
		fmt.Fprintf(&b, "- Roles habituales: %s\n", strings.Join(roles, ", "))
	}
	if sections := topKeys(sectionCounts, 6); len(sections) > 0 {
		fmt.Fprintf(&b, "- Secciones de notas habituales: %s\n", strings.Join(sections, ", "))
	}
	fmt.Fprintf(&b, "- Criterios de aceptación por historia: %.1f de media\n",
		float64(totalCriteria)/float64(len(stories)))
	b.WriteString(`- Formato de historia: "Como <rol>, quiero <capacidad>, para <beneficio>"` + "\n")
	b.WriteString(`- Formato de criterio: "DADO <contexto> CUANDO <acción> ENTONCES <resultado>"`)
	return b.String()
}

func parseDescription(desc string) (role, want, soThat string) {
	if m := comoRe.FindStringSubmatch(desc); m != nil {
		role = strings.TrimSpace(m[1])
	}
	if m := quieroRe.FindStringSubmatch(desc); m != nil {
		want = strings.TrimSpace(m[1])
	}
	if m := paraRe.FindStringSubmatch(desc); m != nil {
		soThat = strings.TrimSpace(strings.TrimSuffix(m[1], "."))
	}
	return role, want, soThat
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	replacer := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n")
	return replacer.Replace(h)
}

func cell(row []string, cols map[string]int, logical string) string {
	idx, ok := cols[logical]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
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
