// Package suggest proposes related entities for the event form: performers
// and events that are temporally, spatially or thematically close to the
// current event. Suggestions are advisory only; nothing here mutates remote
// state.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/database"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// searchLimit caps candidate retrieval per query.
const searchLimit = 20

// Searcher is the slice of the Wikidata client the engine needs.
type Searcher interface {
	SearchEntities(ctx context.Context, query string, limit int) ([]*models.Entity, error)
	GetEntity(ctx context.Context, id string, languages []string) (*models.Entity, error)
}

// Suggestion is one scored candidate.
type Suggestion struct {
	EntityID    string  `json:"entityId"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
}

// Engine scores candidate entities against the current event. Results are
// cached in the local database keyed by the event digest so repeated form
// edits do not refetch.
type Engine struct {
	wikidata Searcher
	db       *database.DB
	ttl      time.Duration
}

// NewEngine wires a searcher and an optional cache. A nil db disables
// caching.
func NewEngine(wikidata Searcher, db *database.DB, ttl time.Duration) *Engine {
	return &Engine{wikidata: wikidata, db: db, ttl: ttl}
}

// Suggest returns scored related entities for the event, best first. The
// organization, when selected, contributes genre and member proximity.
func (e *Engine) Suggest(ctx context.Context, event models.EventDetails, org *models.Entity) ([]Suggestion, error) {
	if event.Title == "" {
		return nil, errors.New("event title is required for suggestions")
	}

	cacheKey := e.cacheKey(event, org)
	if e.db != nil {
		var cached []Suggestion
		if err := e.db.GetCached(cacheKey, e.ttl, &cached); err == nil {
			log.WithField("key", cacheKey).Debug("Suggestion cache hit")
			return cached, nil
		}
	}

	candidates, err := e.gatherCandidates(ctx, event, org)
	if err != nil {
		return nil, err
	}

	suggestions := e.score(event, org, candidates)
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})

	if e.db != nil {
		if err := e.db.PutCached(cacheKey, suggestions); err != nil {
			log.WithError(err).Warn("Failed to cache suggestions")
		}
	}
	return suggestions, nil
}

// cacheKey digests the inputs that influence scoring.
func (e *Engine) cacheKey(event models.EventDetails, org *models.Entity) string {
	orgID := ""
	if org != nil {
		orgID = org.ID
	}
	return fmt.Sprintf("suggest:%s:%s:%s:%s", event.Title, event.Kind, event.Date.Format("2006-01-02"), orgID)
}

// gatherCandidates searches Wikidata by event title and, when an
// organization is selected, by its label and its members' performer links.
// A failing query drops its candidates only.
func (e *Engine) gatherCandidates(ctx context.Context, event models.EventDetails, org *models.Entity) ([]*models.Entity, error) {
	queries := []string{event.Title}
	if org != nil {
		if label := org.Label(event.Language); label != "" {
			queries = append(queries, label)
		}
	}

	seen := make(map[string]bool)
	var candidates []*models.Entity
	for _, query := range queries {
		results, err := e.wikidata.SearchEntities(ctx, query, searchLimit)
		if err != nil {
			log.WithError(err).Warnf("Suggestion search failed for %q", query)
			continue
		}
		for _, result := range results {
			if result.ID == "" || seen[result.ID] {
				continue
			}
			seen[result.ID] = true
			candidates = append(candidates, result)
		}
	}

	// Known members of the organization are strong candidates even when no
	// text search surfaces them.
	if org != nil && !org.IsPending() {
		fresh, err := e.wikidata.GetEntity(ctx, org.ID, []string{event.Language, "en"})
		if err != nil {
			log.WithError(err).Warnf("Member lookup failed for %s", org.ID)
		} else {
			for _, memberID := range fresh.ClaimEntityIDs(models.PropHasPart) {
				if seen[memberID] {
					continue
				}
				member, err := e.wikidata.GetEntity(ctx, memberID, []string{event.Language, "en"})
				if err != nil {
					log.WithError(err).Warnf("Member lookup failed for %s", memberID)
					continue
				}
				seen[memberID] = true
				candidates = append(candidates, member)
			}
		}
	}

	if len(candidates) == 0 {
		return nil, errors.New("no candidates found")
	}
	return candidates, nil
}

// score weights each candidate by temporal, spatial, performer and genre
// proximity to the event. Weights are additive; a candidate sharing several
// signals outranks one sharing a single strong signal.
func (e *Engine) score(event models.EventDetails, org *models.Entity, candidates []*models.Entity) []Suggestion {
	var orgGenres map[string]bool
	var orgMembers map[string]bool
	if org != nil {
		orgGenres = toSet(org.ClaimEntityIDs(models.PropGenre))
		orgMembers = toSet(org.ClaimEntityIDs(models.PropHasPart))
	}

	suggestions := make([]Suggestion, 0, len(candidates))
	for _, candidate := range candidates {
		if org != nil && candidate.ID == org.ID {
			continue
		}
		var score float64
		var reason string

		if s := temporalScore(event.Date, candidate.ClaimTime(models.PropInception)); s > 0 {
			score += s
			reason = appendReason(reason, "close in time")
		}
		if s := spatialScore(event.Coordinates, candidate.ClaimCoordinate(models.PropCoordinates)); s > 0 {
			score += s
			reason = appendReason(reason, "close by")
		}
		if orgMembers[candidate.ID] {
			score += 1.0
			reason = appendReason(reason, "member of the selected organization")
		}
		if sharesAny(orgGenres, candidate.ClaimEntityIDs(models.PropGenre)) {
			score += 0.5
			reason = appendReason(reason, "shared genre")
		}
		if len(candidate.ClaimEntityIDs(models.PropPerformer)) > 0 {
			score += 0.25
			reason = appendReason(reason, "has performers")
		}
		if score == 0 {
			continue
		}

		suggestions = append(suggestions, Suggestion{
			EntityID:    candidate.ID,
			Label:       candidate.Label(event.Language),
			Description: candidate.Description(event.Language),
			Score:       score,
			Reason:      reason,
		})
	}
	return suggestions
}

// temporalScore decays linearly from 1.0 at the same day to 0 at one year.
func temporalScore(eventDate time.Time, inception string) float64 {
	if eventDate.IsZero() || inception == "" {
		return 0
	}
	candidateDate, err := time.Parse("2006-01-02", inception)
	if err != nil {
		return 0
	}
	days := math.Abs(eventDate.Sub(candidateDate).Hours() / 24)
	if days > 365 {
		return 0
	}
	return 1.0 - days/365
}

// spatialScore decays linearly from 1.0 at the same spot to 0 at 200 km.
func spatialScore(a, b *models.GPS) float64 {
	if a == nil || b == nil {
		return 0
	}
	km := haversineKm(a, b)
	if km > 200 {
		return 0
	}
	return 1.0 - km/200
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(a, b *models.GPS) float64 {
	const earthRadiusKm = 6371.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sharesAny(set map[string]bool, ids []string) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}

func appendReason(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + ", " + add
}
