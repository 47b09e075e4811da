// Package publish is the reconciliation core: given the session form state
// it derives the idempotent action set (categories, entity edits, image
// uploads/updates, structured data) needed to bring Commons and Wikidata
// into agreement with local edits, and tracks per-action status against a
// captured original snapshot.
package publish

import (
	"context"
	"sort"
	"sync"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/categories"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// EntityFetcher is the slice of the Wikidata client the builders need.
type EntityFetcher interface {
	GetEntity(ctx context.Context, id string, languages []string) (*models.Entity, error)
}

// CategoryChecker is the slice of the Commons client the builders need.
type CategoryChecker interface {
	CategoryExists(ctx context.Context, name string) (bool, error)
}

// Builder derives the four action lists from a form-state snapshot. All four
// operations are pure with respect to their inputs; the snapshot store is
// the shared mutable context for the image/structured-data diffs.
type Builder interface {
	BuildCategoryActions(ctx context.Context, form *models.FormData) ([]*models.CategoryAction, error)
	BuildEntityActions(ctx context.Context, form *models.FormData) ([]*models.EntityAction, error)
	BuildImageActions(ctx context.Context, form *models.FormData, snaps *SnapshotStore) ([]*models.ImageAction, error)
	BuildStructuredDataActions(ctx context.Context, form *models.FormData, snaps *SnapshotStore) ([]*models.StructuredDataAction, error)
}

// ForWorkflow returns the builder implementation for the workflow kind.
func ForWorkflow(kind models.WorkflowKind, wikidata EntityFetcher, commons CategoryChecker) Builder {
	base := baseBuilder{wikidata: wikidata, commons: commons}
	switch kind {
	case models.WorkflowMusicEvent:
		return &MusicEventBuilder{baseBuilder: base}
	default:
		return &GeneralBuilder{baseBuilder: base}
	}
}

// baseBuilder carries the shared helpers every workflow variant delegates to.
type baseBuilder struct {
	wikidata EntityFetcher
	commons  CategoryChecker
}

// categoryCheck is the outcome of one existence probe. An unresolved check
// (the probe failed) must read as "no work implied", not "pending".
type categoryCheck struct {
	exists   bool
	resolved bool
}

// checkCategories probes Commons for each candidate name concurrently. A
// failing probe is logged and left unresolved; it never aborts the batch.
func (b *baseBuilder) checkCategories(ctx context.Context, names []string) map[string]categoryCheck {
	results := make(map[string]categoryCheck, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			exists, err := b.commons.CategoryExists(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).Warnf("Category existence check failed for %q", name)
				results[name] = categoryCheck{resolved: false}
				return
			}
			results[name] = categoryCheck{exists: exists, resolved: true}
		}(name)
	}
	wg.Wait()
	return results
}

// categoryActionsFor turns category specs into actions using the probe
// results: missing categories are pending creates, existing ones are ready,
// and unresolved ones provisionally read ready with no create flag.
func (b *baseBuilder) categoryActionsFor(ctx context.Context, specs []categories.CategorySpec) []*models.CategoryAction {
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if spec.Name != "" {
			names = append(names, spec.Name)
		}
	}
	checks := b.checkCategories(ctx, names)

	actions := make([]*models.CategoryAction, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			continue
		}
		action := &models.CategoryAction{
			Name:        spec.Name,
			Parent:      spec.Parent,
			Description: spec.Description,
		}
		check := checks[spec.Name]
		switch {
		case check.resolved && !check.exists:
			action.Status = models.StatusPending
			action.ShouldCreate = true
		default:
			// Exists, or unresolved: no work implied.
			action.Status = models.StatusReady
		}
		actions = append(actions, action)
	}
	return actions
}

// missingCorePropertyAction fetches the entity fresh from Wikidata (cached
// copies are never trusted for this decision, other agents may have edited
// it since the form loaded) and emits an update only when the property is
// absent. Pending-id entities are skipped; they do not exist remotely yet.
func (b *baseBuilder) missingCorePropertyAction(ctx context.Context, entityID, property string, derive func(*models.Entity) *models.Claim) (*models.EntityAction, error) {
	if entityID == "" || models.IsPendingID(entityID) {
		return nil, nil
	}
	fresh, err := b.wikidata.GetEntity(ctx, entityID, nil)
	if err != nil {
		return nil, err
	}
	if fresh.HasClaim(property) {
		return nil, nil
	}
	claim := derive(fresh)
	if claim == nil {
		return nil, nil
	}
	return models.NewUpdateEntityAction(entityID, []models.PropertyChange{
		{Property: property, Claim: *claim},
	}), nil
}

// depictsFor computes the depicts list for an image: the primary
// organization first, then the per-image selected members in their stored
// order, without duplicates.
func depictsFor(form *models.FormData, img *models.ImageRecord) []string {
	var depicts []string
	seen := make(map[string]bool)
	if org := form.OrganizationID(); org != "" {
		depicts = append(depicts, org)
		seen[org] = true
	}
	for _, member := range img.Metadata.SelectedBandMembers {
		if member != "" && !seen[member] {
			depicts = append(depicts, member)
			seen[member] = true
		}
	}
	return depicts
}

// newImageActions builds one upload action per queued image.
func (b *baseBuilder) newImageActions(form *models.FormData) []*models.ImageAction {
	actions := make([]*models.ImageAction, 0, len(form.QueuedImages))
	for _, img := range form.QueuedImages {
		actions = append(actions, &models.ImageAction{
			ActionState: models.ActionState{Status: models.StatusPending},
			ImageID:     img.ID,
			Op:          models.ImageUpload,
			FileName:    img.FileName,
			Wikitext:    img.Metadata.Wikitext,
			Depicts:     depictsFor(form, img),
		})
	}
	return actions
}

// newStructuredDataActions seeds one structured-data action per queued
// image with depicts, capture date and GPS, each flagged changed only when
// the underlying value is non-empty.
func (b *baseBuilder) newStructuredDataActions(form *models.FormData) []*models.StructuredDataAction {
	actions := make([]*models.StructuredDataAction, 0, len(form.QueuedImages))
	for _, img := range form.QueuedImages {
		depicts := depictsFor(form, img)
		action := &models.StructuredDataAction{
			ActionState:     models.ActionState{Status: models.StatusPending},
			ImageID:         img.ID,
			Depicts:         depicts,
			DepictsChanged:  len(depicts) > 0,
			Captions:        img.Metadata.Captions,
			CaptionsChanged: len(img.Metadata.Captions) > 0,
		}
		if !img.Metadata.Date.IsZero() {
			action.CaptureDate = img.Metadata.Date.Format("2006-01-02")
			action.DateChanged = true
		}
		if img.Metadata.GPS != nil {
			action.GPS = img.Metadata.GPS
			action.GPSChanged = true
		}
		actions = append(actions, action)
	}
	return actions
}

// existingImageActions diffs already-uploaded images against their captured
// snapshots. An update-metadata action fires only when the serialized body
// text differs.
func (b *baseBuilder) existingImageActions(form *models.FormData, snaps *SnapshotStore) []*models.ImageAction {
	var actions []*models.ImageAction
	for _, img := range form.ExistingImages {
		snap := snaps.Capture(img)
		if img.Metadata.Wikitext == snap.Wikitext {
			continue
		}
		actions = append(actions, &models.ImageAction{
			ActionState: models.ActionState{Status: models.StatusPending},
			ImageID:     img.ID,
			Op:          models.ImageUpdateMetadata,
			FileName:    img.FileName,
			PageID:      img.CommonsPageID,
			Wikitext:    img.Metadata.Wikitext,
		})
	}
	return actions
}

// existingStructuredDataActions fires when depicts changed, captions
// changed, or the body text changed. A body-text change is treated as a
// proxy signal that depicts/captions likely need republishing even when
// their raw values are byte-identical; missing an update costs more than a
// redundant idempotent write.
func (b *baseBuilder) existingStructuredDataActions(form *models.FormData, snaps *SnapshotStore) []*models.StructuredDataAction {
	var actions []*models.StructuredDataAction
	for _, img := range form.ExistingImages {
		snap := snaps.Capture(img)

		membersChanged := !sameStringSet(img.Metadata.SelectedBandMembers, snap.Members)
		captionsChanged := !sameStringMap(img.Metadata.Captions, snap.Captions)
		wikitextChanged := img.Metadata.Wikitext != snap.Wikitext
		if !membersChanged && !captionsChanged && !wikitextChanged {
			continue
		}

		actions = append(actions, &models.StructuredDataAction{
			ActionState:     models.ActionState{Status: models.StatusPending},
			ImageID:         img.ID,
			PageID:          img.CommonsPageID,
			Depicts:         depictsFor(form, img),
			DepictsChanged:  membersChanged || wikitextChanged,
			Captions:        img.Metadata.Captions,
			CaptionsChanged: captionsChanged || wikitextChanged,
		})
	}
	return actions
}

// mainImageActions emits one entity update per image flagged as main image,
// setting the organization's canonical-image property to that file. Several
// flagged images produce several competing actions; applied in order the
// last one wins, which is the deliberate policy.
func (b *baseBuilder) mainImageActions(form *models.FormData) []*models.EntityAction {
	orgID := form.OrganizationID()
	if orgID == "" || models.IsPendingID(orgID) {
		return nil
	}
	var actions []*models.EntityAction
	for _, img := range form.AllImages() {
		if !img.Metadata.SetAsMainImage {
			continue
		}
		actions = append(actions, models.NewUpdateEntityAction(orgID, []models.PropertyChange{
			{Property: models.PropImage, Claim: models.Claim{Kind: models.ClaimString, Text: img.FileName}},
		}))
	}
	return actions
}

// sameStringSet compares two slices as sets; the stored order of selected
// members is presentation detail, not published state.
func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sameStringMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
