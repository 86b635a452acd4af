package retrieval

import (
	"fmt"
	"strings"

	"storyforge/internal/store"
)

// categoryTitles are the Spanish block headings used in the evidence context.
var categoryTitles = map[string]string{
	"functional":  "FUNCIONALIDADES",
	"integration": "INTEGRACIONES",
	"security":    "SEGURIDAD Y PERMISOS",
	"data":        "DATOS Y ENTIDADES",
	"nfr":         "REQUISITOS NO FUNCIONALES",
	"flows":       "FLUJOS",
	"validation":  "VALIDACIONES",
}

const mergedTopLimit = 30

// BuildContext renders the pack into a prompt-ready evidence block: one
// section per category plus a merged top section capped at 30 chunks.
func BuildContext(pack *Pack, perCategoryLimit int) string {
	if pack == nil {
		return ""
	}
	if perCategoryLimit <= 0 {
		perCategoryLimit = 8
	}

	var b strings.Builder
	for _, cat := range Categories {
		hits := pack.PerCategory[cat]
		if len(hits) == 0 {
			continue
		}
		title, ok := categoryTitles[cat]
		if !ok {
			title = strings.ToUpper(cat)
		}
		fmt.Fprintf(&b, "## %s\n", title)
		writeHits(&b, hits, perCategoryLimit)
		b.WriteString("\n")
	}

	b.WriteString("## EVIDENCIA PRINCIPAL\n")
	writeHits(&b, pack.Merged, mergedTopLimit)

	return strings.TrimSpace(b.String())
}

func writeHits(b *strings.Builder, hits []store.Hit, limit int) {
	n := min(limit, len(hits))
	for _, hit := range hits[:n] {
		fmt.Fprintf(b, "- [%s | %.3f] %s\n", hit.ChunkID, hit.Score, strings.TrimSpace(hit.Content))
	}
}
