package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"storyforge/internal/model"
)

func TestWriteBacklogRoundTrip(t *testing.T) {
	backlog := &model.Backlog{
		DocumentID: "doc_1", VersionID: "v_1", GeneratedAt: "2026-01-01T00:00:00Z",
		UserStories: []model.UserStory{{
			StoryID: "US-001", Epic: "Ventas", Title: "Registrar pedido", Role: "Administrador",
			Want: "registrar pedidos", SoThat: "control de ventas",
			NotesHu:            []model.NotesSection{{Section: "Reglas", Bullets: []string{"a", "b"}}},
			AcceptanceCriteria: []string{"DADO a CUANDO b ENTONCES c"},
			Traceability:       []model.Traceability{{ChunkID: "c_1", Confidence: 0.8}},
		}},
	}
	reqs := &model.Requirements{Actors: []model.Actor{
		{ID: "a1", Name: "Administrador", Description: "gestiona la tienda"},
	}}

	path := filepath.Join(t.TempDir(), "backlog.xlsx")
	require.NoError(t, WriteBacklog(path, backlog, reqs))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Backlog")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "US-001", rows[1][0])
	assert.Equal(t, "Registrar pedido", rows[1][2])
	assert.Contains(t, rows[1][7], "Reglas: a; b")
	assert.Contains(t, rows[1][8], "c_1 (0.80)")

	actorRows, err := f.GetRows("Actores")
	require.NoError(t, err)
	require.Len(t, actorRows, 2)
	assert.Equal(t, "Administrador", actorRows[1][1])
	assert.Equal(t, "1", actorRows[1][3])
}

func TestWriteBacklogWithoutActorsSheet(t *testing.T) {
	backlog := &model.Backlog{UserStories: []model.UserStory{{StoryID: "US-001"}}}
	path := filepath.Join(t.TempDir(), "solo.xlsx")
	require.NoError(t, WriteBacklog(path, backlog, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.NotContains(t, f.GetSheetList(), "Actores")
}
