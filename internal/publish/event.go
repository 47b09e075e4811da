package publish

import (
	"context"
	"fmt"
	"sync"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/categories"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// MusicEventBuilder is the festival/concert workflow. On top of the shared
// image/structured-data helpers it derives event and performer categories,
// creates the event entity when no Wikidata id exists, and keeps the core
// Commons-category property present on the event and the organization.
type MusicEventBuilder struct {
	baseBuilder
}

func (b *MusicEventBuilder) BuildCategoryActions(ctx context.Context, form *models.FormData) ([]*models.CategoryAction, error) {
	specs := categories.CategoriesToCreate(form.Event)
	specs = append(specs, b.performerCategorySpecs(ctx, form)...)
	return b.categoryActionsFor(ctx, specs), nil
}

func (b *MusicEventBuilder) BuildEntityActions(ctx context.Context, form *models.FormData) ([]*models.EntityAction, error) {
	var actions []*models.EntityAction

	if action := b.eventEntityAction(ctx, form.Event); action != nil {
		actions = append(actions, action)
	}

	if org := form.Organization; org != nil {
		if org.IsPending() {
			actions = append(actions, models.NewCreateEntityAction(
				org.ID,
				org.Label(form.Event.Language),
				org.Description(form.Event.Language),
				nil,
			))
		} else {
			action, err := b.missingCorePropertyAction(ctx, org.ID, models.PropCommonsCategory,
				func(fresh *models.Entity) *models.Claim {
					label := fresh.Label(form.Event.Language)
					if label == "" {
						return nil
					}
					return &models.Claim{Kind: models.ClaimString, Text: label}
				})
			if err != nil {
				// One failed lookup must not abort the batch.
				log.WithError(err).Warnf("Commons-category check failed for organization %s", org.ID)
			} else if action != nil {
				actions = append(actions, action)
			}
		}
	}

	return append(actions, b.mainImageActions(form)...), nil
}

func (b *MusicEventBuilder) BuildImageActions(ctx context.Context, form *models.FormData, snaps *SnapshotStore) ([]*models.ImageAction, error) {
	actions := b.newImageActions(form)
	return append(actions, b.existingImageActions(form, snaps)...), nil
}

func (b *MusicEventBuilder) BuildStructuredDataActions(ctx context.Context, form *models.FormData, snaps *SnapshotStore) ([]*models.StructuredDataAction, error) {
	actions := b.newStructuredDataActions(form)
	return append(actions, b.existingStructuredDataActions(form, snaps)...), nil
}

// eventEntityAction creates the event entity when the form carries no remote
// id, or checks its Commons-category property when it does.
func (b *MusicEventBuilder) eventEntityAction(ctx context.Context, event models.EventDetails) *models.EntityAction {
	if event.Title == "" {
		return nil
	}

	if event.WikidataID == "" {
		draftClaims := []models.PropertyChange{
			{Property: models.PropCommonsCategory, Claim: models.Claim{
				Kind: models.ClaimString, Text: categories.EventCategory(event),
			}},
		}
		if !event.Date.IsZero() {
			draftClaims = append(draftClaims, models.PropertyChange{
				Property: models.PropInception,
				Claim:    models.Claim{Kind: models.ClaimTime, Time: event.Date.Format("2006-01-02")},
			})
		}
		if event.Coordinates != nil {
			draftClaims = append(draftClaims, models.PropertyChange{
				Property: models.PropCoordinates,
				Claim:    models.Claim{Kind: models.ClaimCoordinate, Coordinate: event.Coordinates},
			})
		}
		// Deterministic pending id: recomputation passes must produce the
		// same action key for the same form state.
		pendingID := models.PendingIDPrefix + "event:" + categories.EventCategory(event)
		return models.NewCreateEntityAction(pendingID, event.Title, categories.GenerateDescription(event), draftClaims)
	}

	action, err := b.missingCorePropertyAction(ctx, event.WikidataID, models.PropCommonsCategory,
		func(*models.Entity) *models.Claim {
			name := categories.EventCategory(event)
			if name == "" {
				return nil
			}
			return &models.Claim{Kind: models.ClaimString, Text: name}
		})
	if err != nil {
		log.WithError(err).Warnf("Commons-category check failed for event %s", event.WikidataID)
		return nil
	}
	return action
}

// performerCategorySpecs derives "<performer> at <event>" categories for
// every selected member across the image set. Labels are fetched
// concurrently; a failed lookup drops that performer only.
func (b *MusicEventBuilder) performerCategorySpecs(ctx context.Context, form *models.FormData) []categories.CategorySpec {
	ids := performerIDs(form)
	if len(ids) == 0 {
		return nil
	}

	labels := make([]string, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		if models.IsPendingID(id) {
			// Not on Wikidata yet, so there is no label to build a
			// category name from.
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			entity, err := b.wikidata.GetEntity(ctx, id, []string{form.Event.Language, "en"})
			if err != nil {
				log.WithError(err).Warnf("Performer lookup failed for %s", id)
				return
			}
			labels[i] = entity.Label(form.Event.Language)
		}(i, id)
	}
	wg.Wait()

	eventCategory := categories.EventCategory(form.Event)
	var specs []categories.CategorySpec
	for _, label := range labels {
		name := categories.PerformerAtEvent(label, form.Event)
		if name == "" {
			continue
		}
		specs = append(specs, categories.CategorySpec{
			Name:        name,
			Parent:      eventCategory,
			Description: fmt.Sprintf("Photographs of %s at %s.", label, eventCategory),
		})
	}
	return specs
}

// performerIDs collects every selected member id across all images,
// first-seen order, without duplicates.
func performerIDs(form *models.FormData) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, img := range form.AllImages() {
		for _, member := range img.Metadata.SelectedBandMembers {
			if member != "" && !seen[member] {
				ids = append(ids, member)
				seen[member] = true
			}
		}
	}
	return ids
}
