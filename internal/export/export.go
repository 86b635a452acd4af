// Package export writes the generated backlog to a spreadsheet: one sheet
// with the stories, one with the actor summary.
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"storyforge/internal/model"
)

const (
	backlogSheet = "Backlog"
	actorsSheet  = "Actores"
)

var backlogHeaders = []string{
	"ID", "Épica", "Título", "Rol", "Quiero", "Para",
	"Criterios de aceptación", "Notas", "Trazabilidad", "Supuestos", "Preguntas abiertas",
}

// WriteBacklog writes the backlog workbook at path.
func WriteBacklog(path string, backlog *model.Backlog, reqs *model.Requirements) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), backlogSheet)
	if err := writeRow(f, backlogSheet, 1, toAny(backlogHeaders)); err != nil {
		return err
	}

	for i, story := range backlog.UserStories {
		row := []any{
			story.StoryID,
			story.Epic,
			story.Title,
			story.Role,
			story.Want,
			story.SoThat,
			strings.Join(story.AcceptanceCriteria, "\n"),
			flattenNotes(story.NotesHu),
			flattenTrace(story.Traceability),
			strings.Join(story.Assumptions, "\n"),
			strings.Join(story.OpenQuestions, "\n"),
		}
		if err := writeRow(f, backlogSheet, i+2, row); err != nil {
			return err
		}
	}

	if reqs != nil && len(reqs.Actors) > 0 {
		if _, err := f.NewSheet(actorsSheet); err != nil {
			return fmt.Errorf("creating actors sheet: %w", err)
		}
		if err := writeRow(f, actorsSheet, 1, []any{"ID", "Nombre", "Descripción", "Historias"}); err != nil {
			return err
		}
		for i, actor := range reqs.Actors {
			count := 0
			for _, story := range backlog.UserStories {
				if strings.EqualFold(story.Role, actor.Name) {
					count++
				}
			}
			if err := writeRow(f, actorsSheet, i+2, []any{actor.ID, actor.Name, actor.Description, count}); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cellRef, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cellRef, &values); err != nil {
		return fmt.Errorf("writing row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func flattenNotes(notes []model.NotesSection) string {
	var lines []string
	for _, sec := range notes {
		lines = append(lines, sec.Section+": "+strings.Join(sec.Bullets, "; "))
	}
	return strings.Join(lines, "\n")
}

func flattenTrace(trace []model.Traceability) string {
	var parts []string
	for _, link := range trace {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", link.ChunkID, link.Confidence))
	}
	return strings.Join(parts, ", ")
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
