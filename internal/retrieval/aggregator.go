// Package retrieval issues category-specific similarity queries against the
// chunk store and merges the results into one ranked evidence pack.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storyforge/internal/embedding"
	"storyforge/internal/store"
)

// Categories is the fixed set of evidence categories queried per run.
var Categories = []string{"functional", "integration", "security", "data", "flows", "nfr"}

// queryTemplates holds the per-category guidance text embedded as the query.
var queryTemplates = map[string]string{
	"functional":  "Extrae funcionalidades y acciones del usuario o del sistema: CRUD, pantallas, reglas operativas.",
	"integration": "Extrae integraciones, APIs, eventos, webhooks, sistemas externos y contratos de interfaz.",
	"security":    "Extrae seguridad, permisos, roles, auditoria, logging, RGPD, cifrado y autenticacion.",
	"data":        "Extrae entidades, campos, estados, identificadores, reglas de datos y validaciones de datos.",
	"nfr":         "Extrae requisitos no funcionales: rendimiento, disponibilidad, escalabilidad, observabilidad, SLAs.",
	"flows":       "Extrae flujos end-to-end, pasos, estados, excepciones, reintentos y casos alternativos.",
	"validation":  "Extrae validaciones, criterios de aceptacion implicitos, errores, mensajes y condiciones.",
}

// Searcher is the similarity-search primitive the aggregator consumes.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int, scope store.Scope) ([]store.Hit, error)
}

// Params scope one retrieval round.
type Params struct {
	TopK             int
	DocumentID       string
	VersionID        string
	Categories       []string
	ExtraDocumentIDs []string
	ExtraVersionIDs  []string
}

// Pack is the merged retrieval result.
type Pack struct {
	Merged      []store.Hit            `json:"merged"`
	PerCategory map[string][]store.Hit `json:"perCategory"`
}

// Aggregator runs the per-category queries. Read-only against the store;
// store errors propagate without retries.
type Aggregator struct {
	embed  embedding.Engine
	search Searcher
	log    *zap.Logger
}

// NewAggregator wires an aggregator.
func NewAggregator(embed embedding.Engine, search Searcher, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{embed: embed, search: search, log: log.Named("retrieval")}
}

// Retrieve runs one similarity query per category (concurrently, categories
// are independent read-only queries), then merges all hits deduplicating by
// chunk id and keeping the maximum score seen for each.
func (a *Aggregator) Retrieve(ctx context.Context, params Params) (*Pack, error) {
	categories := params.Categories
	if len(categories) == 0 {
		categories = Categories
	}

	scope := store.Scope{
		DocumentIDs: append([]string{params.DocumentID}, params.ExtraDocumentIDs...),
		VersionIDs:  append([]string{params.VersionID}, params.ExtraVersionIDs...),
	}

	perCategory := make(map[string][]store.Hit, len(categories))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range categories {
		g.Go(func() error {
			guidance, ok := queryTemplates[cat]
			if !ok {
				guidance = fmt.Sprintf("Extrae requisitos de categoria: %s", cat)
			}

			vec, err := a.embed.Embed(gctx, guidance)
			if err != nil {
				return fmt.Errorf("embedding query for category %s: %w", cat, err)
			}

			hits, err := a.search.Search(gctx, vec, params.TopK, scope)
			if err != nil {
				return fmt.Errorf("searching category %s: %w", cat, err)
			}

			mu.Lock()
			perCategory[cat] = hits
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := make(map[string]store.Hit)
	for _, cat := range categories {
		for _, hit := range perCategory[cat] {
			if prev, ok := best[hit.ChunkID]; !ok || hit.Score > prev.Score {
				best[hit.ChunkID] = hit
			}
		}
	}

	merged := make([]store.Hit, 0, len(best))
	for _, hit := range best {
		merged = append(merged, hit)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ChunkID < merged[j].ChunkID
	})

	a.log.Debug("retrieval complete",
		zap.Int("categories", len(categories)),
		zap.Int("merged_chunks", len(merged)))

	return &Pack{Merged: merged, PerCategory: perCategory}, nil
}
