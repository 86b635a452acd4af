package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"storyforge/internal/model"
	"storyforge/internal/store"
	"storyforge/internal/textsim"
)

const (
	actorByFunctionalityThreshold = 0.15
	actorByNameThreshold          = 0.20
	directChunkThreshold          = 0.12
	maxFunctionalityChunks        = 3
	maxDirectChunks               = 3
	maxTraceLinks                 = 4
)

// EnforceConsistency normalizes every story's role against the canonical
// actor set and enriches its traceability from the evidence chunks. Stories
// are mutated in place.
func EnforceConsistency(stories []model.UserStory, reqs *model.Requirements, evidence []store.Hit) {
	if reqs == nil {
		return
	}
	for i := range stories {
		normalizeActor(&stories[i], reqs)
		enrichTraceability(&stories[i], reqs.Functionalities, evidence)
	}
}

func normalizeActor(story *model.UserStory, reqs *model.Requirements) {
	role := textsim.Normalize(story.Role)

	// (a) exact canonical name.
	for _, actor := range reqs.Actors {
		if role != "" && role == textsim.Normalize(actor.Name) {
			story.Role = actor.Name
			return
		}
	}

	// (b) best functionality intent match pins the actor via its actorId.
	// Functionalities whose actor is not in the canonical set do not count.
	intent := story.IntentText()
	bestScore := 0.0
	var bestActor *model.Actor
	for _, fn := range reqs.Functionalities {
		actor, ok := actorByID(reqs.Actors, fn.ActorID)
		if !ok {
			continue
		}
		if score := textsim.Overlap(fn.MatchText(), intent); score > bestScore {
			bestScore = score
			bestActor = &actor
		}
	}
	if bestActor != nil && bestScore >= actorByFunctionalityThreshold {
		prev := story.Role
		story.Role = bestActor.Name
		story.Assumptions = append(story.Assumptions,
			fmt.Sprintf("Rol %q normalizado a %q por coincidencia con la funcionalidad del catálogo.", prev, bestActor.Name))
		return
	}

	// (c) fuzzy match against name+description.
	bestScore, bestActor = 0.0, nil
	for i, actor := range reqs.Actors {
		if score := textsim.Overlap(story.Role, actor.Name+" "+actor.Description); score > bestScore {
			bestScore = score
			bestActor = &reqs.Actors[i]
		}
	}
	if bestActor != nil && bestScore >= actorByNameThreshold {
		prev := story.Role
		story.Role = bestActor.Name
		story.Assumptions = append(story.Assumptions,
			fmt.Sprintf("Rol %q normalizado a %q por similitud de nombre y descripción.", prev, bestActor.Name))
		return
	}

	// (d) unresolved: leave the role, surface the canonical set.
	if len(reqs.Actors) > 0 {
		names := make([]string, len(reqs.Actors))
		for i, actor := range reqs.Actors {
			names[i] = actor.Name
		}
		story.OpenQuestions = append(story.OpenQuestions,
			fmt.Sprintf("El rol %q no coincide con ningún actor canónico (%s); confirmar el actor correcto.",
				story.Role, strings.Join(names, ", ")))
	}
}

func enrichTraceability(story *model.UserStory, functionalities []model.Functionality, evidence []store.Hit) {
	body := story.BodyText()

	var links []model.Traceability

	// (i) chunk ids carried by the best-matching functionality.
	bestScore := 0.0
	var bestFn *model.Functionality
	for i, fn := range functionalities {
		if score := textsim.Overlap(fn.FullText(), body); score > bestScore {
			bestScore = score
			bestFn = &functionalities[i]
		}
	}
	if bestFn != nil && bestScore > 0 {
		conf := clamp(bestScore, 0.55, 0.95)
		for _, chunkID := range bestFn.SourceChunkIDs {
			if len(links) >= maxFunctionalityChunks {
				break
			}
			links = append(links, model.Traceability{ChunkID: chunkID, Confidence: conf})
		}
	}

	// (ii) direct evidence matches against the story text.
	type scored struct {
		hit   store.Hit
		score float64
	}
	var direct []scored
	for _, hit := range evidence {
		if score := textsim.Overlap(hit.Content, body); score >= directChunkThreshold {
			direct = append(direct, scored{hit: hit, score: score})
		}
	}
	sort.Slice(direct, func(i, j int) bool {
		if direct[i].score != direct[j].score {
			return direct[i].score > direct[j].score
		}
		return direct[i].hit.ChunkID < direct[j].hit.ChunkID
	})
	for i, d := range direct {
		if i >= maxDirectChunks {
			break
		}
		links = append(links, model.Traceability{ChunkID: d.hit.ChunkID, Confidence: clamp(d.score, 0.50, 0.90)})
	}

	// Merge: first occurrence wins, hard cap.
	seen := make(map[string]struct{}, len(links))
	merged := links[:0]
	for _, link := range links {
		if _, dup := seen[link.ChunkID]; dup {
			continue
		}
		seen[link.ChunkID] = struct{}{}
		merged = append(merged, link)
		if len(merged) >= maxTraceLinks {
			break
		}
	}

	if len(merged) > 0 {
		story.Traceability = merged
	}
}

func actorByID(actors []model.Actor, id string) (model.Actor, bool) {
	for _, a := range actors {
		if a.ID == id {
			return a, true
		}
	}
	return model.Actor{}, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
