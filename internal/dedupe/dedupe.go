// Package dedupe partitions incoming files against the existing image set so
// the operator only confirms genuine collisions. The contract the rest of
// the system relies on is the two-way partition; the signals (content hash,
// filename+size heuristic) are an implementation detail.
package dedupe

import (
	"strings"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// Conflict pairs a candidate with every existing record it collides with.
type Conflict struct {
	Candidate *models.ImageRecord
	Existing  []*models.ImageRecord
}

// Result is the two-way partition of a candidate batch.
type Result struct {
	Valid      []*models.ImageRecord
	Duplicates []Conflict
}

// Partition splits candidates into safe-to-add and needs-confirmation sets.
// A candidate collides with an existing record when their content hashes
// match, or, when a hash is missing on either side, when filename and size
// both match. Candidates marked SkipDuplicateCheck (a confirmed "add
// anyway") bypass the check entirely.
func Partition(candidates, existing []*models.ImageRecord) Result {
	var result Result
	for _, candidate := range candidates {
		if candidate.SkipDuplicateCheck {
			result.Valid = append(result.Valid, candidate)
			continue
		}

		var hits []*models.ImageRecord
		for _, ex := range existing {
			if collides(candidate, ex) {
				hits = append(hits, ex)
			}
		}
		if len(hits) == 0 {
			result.Valid = append(result.Valid, candidate)
		} else {
			log.Debugf("Duplicate candidate %s collides with %d existing image(s)", candidate.FileName, len(hits))
			result.Duplicates = append(result.Duplicates, Conflict{Candidate: candidate, Existing: hits})
		}
	}
	return result
}

func collides(a, b *models.ImageRecord) bool {
	if a.Hash != "" && b.Hash != "" {
		return strings.EqualFold(a.Hash, b.Hash)
	}
	return a.FileName != "" && a.FileName == b.FileName && a.Size == b.Size
}
