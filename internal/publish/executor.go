package publish

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/categories"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/commons"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// EntityWriter is the write slice of the Wikidata client.
type EntityWriter interface {
	CreateEntity(ctx context.Context, draft *models.Entity) (string, error)
	UpdateEntity(ctx context.Context, id string, changes []models.PropertyChange) error
}

// CommonsWriter is the write slice of the Commons client.
type CommonsWriter interface {
	CreateCategory(ctx context.Context, name, wikitext string) error
	UploadFile(ctx context.Context, fileName, wikitext, comment string, file io.Reader) (int, error)
	UpdatePageBody(ctx context.Context, pageID int, wikitext string) error
	SetStructuredData(ctx context.Context, pageID int, update *commons.StructuredDataUpdate) error
}

// Result reports one executed action to the caller, for journaling and
// progress display.
type Result struct {
	Kind   models.ActionKind
	Key    string
	Status models.ActionStatus
	Error  string
}

// Executor runs the aggregator's plan against the live APIs in dependency
// order: categories, entities, images, structured data. Entity creations
// resolve pending placeholder ids; later actions referencing a placeholder
// get the assigned id substituted. One failing action is recorded and the
// run continues.
type Executor struct {
	agg      *Aggregator
	wikidata EntityWriter
	commons  CommonsWriter

	// resolved maps pending placeholder ids to assigned Wikidata ids,
	// filled in as create actions complete.
	resolved map[string]string

	// OnResult, when set, is called after every executed action.
	OnResult func(Result)

	// openFile is swappable in tests.
	openFile func(path string) (io.ReadCloser, error)
}

// NewExecutor wires an executor to an aggregator and the write clients.
func NewExecutor(agg *Aggregator, wikidata EntityWriter, cm CommonsWriter) *Executor {
	return &Executor{
		agg:      agg,
		wikidata: wikidata,
		commons:  cm,
		resolved: make(map[string]string),
		openFile: func(path string) (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Run executes every pending action in the current plan. It returns the
// number of failed actions; per-action errors are recorded on the actions
// themselves and reported through OnResult.
func (e *Executor) Run(ctx context.Context, form *models.FormData) (int, error) {
	plan := e.agg.Plan()
	failures := 0

	for _, action := range plan.Categories {
		if !e.begin(action) {
			continue
		}
		failures += e.finish(action, e.runCategory(ctx, action))
	}
	for _, action := range plan.Entities {
		if !e.begin(action) {
			continue
		}
		failures += e.finish(action, e.runEntity(ctx, action))
	}
	for _, action := range plan.Images {
		if !e.begin(action) {
			continue
		}
		failures += e.finish(action, e.runImage(ctx, form, action))
	}
	for _, action := range plan.StructuredData {
		if !e.begin(action) {
			continue
		}
		failures += e.finish(action, e.runStructuredData(ctx, form, action))
	}

	if err := ctx.Err(); err != nil {
		return failures, err
	}
	return failures, nil
}

// begin claims a pending action, skipping everything else.
func (e *Executor) begin(action models.Action) bool {
	if action.State().Status != models.StatusPending {
		return false
	}
	if err := e.agg.UpdateActionStatus(action.Kind(), action.Key(), models.StatusInProgress, ""); err != nil {
		log.WithError(err).Warnf("Could not start %s action %q", action.Kind(), action.Key())
		return false
	}
	return true
}

// finish records the outcome and returns 1 on failure for tallying.
func (e *Executor) finish(action models.Action, err error) int {
	status := models.StatusCompleted
	errMsg := ""
	if err != nil {
		status = models.StatusError
		errMsg = err.Error()
		log.WithError(err).Errorf("%s action %q failed", action.Kind(), action.Key())
	}
	if uerr := e.agg.UpdateActionStatus(action.Kind(), action.Key(), status, errMsg); uerr != nil {
		log.WithError(uerr).Warnf("Could not record outcome of %s action %q", action.Kind(), action.Key())
	}
	if e.OnResult != nil {
		e.OnResult(Result{Kind: action.Kind(), Key: action.Key(), Status: status, Error: errMsg})
	}
	if err != nil {
		return 1
	}
	return 0
}

func (e *Executor) runCategory(ctx context.Context, action *models.CategoryAction) error {
	if !action.ShouldCreate {
		return nil
	}
	wikitext := categories.CategoryWikitext(categories.CategorySpec{
		Name:        action.Name,
		Parent:      action.Parent,
		Description: action.Description,
	})
	return e.commons.CreateCategory(ctx, action.Name, wikitext)
}

func (e *Executor) runEntity(ctx context.Context, action *models.EntityAction) error {
	changes := e.resolveChanges(action.Changes)

	if action.Op == models.EntityCreate {
		draft := &models.Entity{
			ID:           action.EntityID,
			Labels:       map[string]string{"en": action.Label},
			Descriptions: map[string]string{"en": action.Description},
		}
		for _, change := range changes {
			draft.AddClaim(change.Property, change.Claim)
		}
		assigned, err := e.wikidata.CreateEntity(ctx, draft)
		if err != nil {
			return err
		}
		e.resolved[action.EntityID] = assigned
		log.WithField("id", assigned).Infof("Created entity %q", action.Label)
		return nil
	}

	target := e.resolveID(action.EntityID)
	if models.IsPendingID(target) {
		return fmt.Errorf("entity %s was never created; cannot apply update", target)
	}
	return e.wikidata.UpdateEntity(ctx, target, changes)
}

func (e *Executor) runImage(ctx context.Context, form *models.FormData, action *models.ImageAction) error {
	img := form.ImageByID(action.ImageID)
	if img == nil {
		return fmt.Errorf("image %s is no longer in the form", action.ImageID)
	}

	if action.Op == models.ImageUpdateMetadata {
		return e.commons.UpdatePageBody(ctx, action.PageID, action.Wikitext)
	}

	file, err := e.openFile(img.FilePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", img.FilePath, err)
	}
	defer file.Close()

	pageID, err := e.commons.UploadFile(ctx, action.FileName, action.Wikitext, "WikiPortraits upload", file)
	if err != nil {
		return err
	}
	img.CommonsPageID = pageID
	return nil
}

func (e *Executor) runStructuredData(ctx context.Context, form *models.FormData, action *models.StructuredDataAction) error {
	pageID := action.PageID
	if pageID == 0 {
		// Fresh uploads get their page id during this run.
		if img := form.ImageByID(action.ImageID); img != nil {
			pageID = img.CommonsPageID
		}
	}
	if pageID == 0 {
		return fmt.Errorf("image %s has no Commons page; upload may have failed", action.ImageID)
	}

	update := &commons.StructuredDataUpdate{}
	if action.DepictsChanged {
		update.Depicts = e.resolveIDs(action.Depicts)
	}
	if action.CaptionsChanged {
		update.Captions = action.Captions
	}
	if action.DateChanged {
		update.CaptureDate = action.CaptureDate
	}
	if action.GPSChanged {
		update.GPS = action.GPS
	}
	return e.commons.SetStructuredData(ctx, pageID, update)
}

// resolveID substitutes an assigned id for a pending placeholder when one
// was created earlier in this run.
func (e *Executor) resolveID(id string) string {
	if assigned, ok := e.resolved[id]; ok {
		return assigned
	}
	return id
}

func (e *Executor) resolveIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = e.resolveID(id)
	}
	return out
}

func (e *Executor) resolveChanges(changes []models.PropertyChange) []models.PropertyChange {
	out := make([]models.PropertyChange, len(changes))
	for i, change := range changes {
		if change.Claim.Kind == models.ClaimEntity {
			change.Claim.EntityID = e.resolveID(change.Claim.EntityID)
		}
		out[i] = change
	}
	return out
}
