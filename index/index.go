// Package index keeps a local Bleve full-text index over every Wikidata
// entity the tool has seen, so the search command can answer offline and the
// form can offer completions without hitting the API.
package index

import (
	"os"
	"time"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "wikiportraits.bleve"

// Item is one indexed entity. All fields are searchable by their lowercase
// JSON tag names (e.g. '+kind:festival' or '+label:alice').
type Item struct {
	ID          string    `json:"id"`                    // Wikidata id (Q…)
	Kind        string    `json:"kind,omitempty"`        // band, performer, festival, …
	Label       string    `json:"label"`                 // preferred-language label
	Description string    `json:"description,omitempty"` // preferred-language description
	Category    string    `json:"category,omitempty"`    // Commons category, when known
	SeenAt      time.Time `json:"seenAt,omitempty"`      // when the tool last fetched it
}

// FromEntity builds an indexable item from a fetched entity.
func FromEntity(entity *models.Entity, kind, language string) Item {
	return Item{
		ID:          entity.ID,
		Kind:        kind,
		Label:       entity.Label(language),
		Description: entity.Description(language),
		Category:    entity.ClaimString(models.PropCommonsCategory),
		SeenAt:      time.Now().UTC(),
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Debugf("Creating new index at %s", indexPath)
		mapping := bleve.NewIndexMapping()
		return bleve.New(indexPath, mapping)
	}
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// IndexItem adds or updates an entity in the index. Pending-id placeholders
// are skipped; they have no stable identity yet.
func IndexItem(idx bleve.Index, item Item) error {
	if models.IsPendingID(item.ID) {
		return nil
	}
	return idx.Index(item.ID, item)
}

// SearchIndex runs a query-string search and returns all stored fields.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"}
	return idx.Search(searchRequest)
}

// DeleteIndex removes the index directory.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Infof("Deleting index at %s", indexPath)
	return os.RemoveAll(indexPath)
}
