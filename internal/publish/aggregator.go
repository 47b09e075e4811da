package publish

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// Aggregator owns the authoritative action list. It recomputes the plan when
// the stable form digest changes, preserves operator-added manual actions
// across recomputations, and provides the single mutation surface for status
// transitions.
type Aggregator struct {
	builder Builder
	snaps   *SnapshotStore

	mu      sync.Mutex
	form    *models.FormData
	plan    models.Plan
	manual  []*models.CategoryAction
	lastKey string

	// inFlight collapses overlapping recompute triggers: the second trigger
	// is dropped, not queued. The next natural state change catches any
	// missed delta.
	inFlight atomic.Bool

	onCounts func(models.Counts)
}

// NewAggregator wires a builder and a snapshot store.
func NewAggregator(builder Builder, snaps *SnapshotStore) *Aggregator {
	if snaps == nil {
		snaps = NewSnapshotStore()
	}
	return &Aggregator{builder: builder, snaps: snaps}
}

// OnCountsChanged registers a listener mirroring the derived counts into the
// shared form state for progress indicators.
func (a *Aggregator) OnCountsChanged(fn func(models.Counts)) {
	a.mu.Lock()
	a.onCounts = fn
	a.mu.Unlock()
}

// Snapshots exposes the shared snapshot store.
func (a *Aggregator) Snapshots() *SnapshotStore { return a.snaps }

// AddManualCategory inserts an operator-added ad hoc category action. Manual
// actions are not derivable from form state, so recomputation re-inserts
// them instead of replacing them.
func (a *Aggregator) AddManualCategory(name string) *models.CategoryAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.manual {
		if m.Name == name {
			return m
		}
	}
	action := &models.CategoryAction{
		ActionState:  models.ActionState{Status: models.StatusPending},
		Name:         name,
		ShouldCreate: true,
		Manual:       true,
	}
	a.manual = append(a.manual, action)
	a.plan.Categories = append(a.plan.Categories, action)
	a.notifyCounts()
	return action
}

// Recompute rebuilds the plan from the form when its stable digest changed.
// It reports whether a pass ran. An overlapping trigger while a pass is in
// flight is dropped. A failing pass leaves the previous plan untouched:
// stale-but-valid beats empty-and-wrong.
func (a *Aggregator) Recompute(ctx context.Context, form *models.FormData) (bool, error) {
	key := StableKey(form)

	a.mu.Lock()
	unchanged := key != "" && key == a.lastKey
	a.mu.Unlock()
	if unchanged {
		return false, nil
	}

	if !a.inFlight.CompareAndSwap(false, true) {
		log.Debug("Recompute trigger dropped: a pass is already in flight")
		return false, nil
	}
	defer a.inFlight.Store(false)

	plan, err := a.buildPlan(ctx, form)
	if err != nil {
		log.WithError(err).Error("Recomputation failed; keeping previous action list")
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Re-insert manual actions the derived set does not already cover.
	for _, m := range a.manual {
		if findCategory(plan.Categories, m.Name) == nil {
			plan.Categories = append(plan.Categories, m)
		}
	}

	a.form = form
	a.plan = *plan
	a.lastKey = key
	a.notifyCounts()
	return true, nil
}

// buildPlan runs the four builder operations. Independent per-item fetches
// inside them already fan out; the four lists are built sequentially since
// later ones share the snapshot store.
func (a *Aggregator) buildPlan(ctx context.Context, form *models.FormData) (*models.Plan, error) {
	plan := &models.Plan{}
	var err error
	if plan.Categories, err = a.builder.BuildCategoryActions(ctx, form); err != nil {
		return nil, fmt.Errorf("building category actions: %w", err)
	}
	if plan.Entities, err = a.builder.BuildEntityActions(ctx, form); err != nil {
		return nil, fmt.Errorf("building entity actions: %w", err)
	}
	if plan.Images, err = a.builder.BuildImageActions(ctx, form, a.snaps); err != nil {
		return nil, fmt.Errorf("building image actions: %w", err)
	}
	if plan.StructuredData, err = a.builder.BuildStructuredDataActions(ctx, form, a.snaps); err != nil {
		return nil, fmt.Errorf("building structured-data actions: %w", err)
	}
	return plan, nil
}

// Plan returns the current action list.
func (a *Aggregator) Plan() models.Plan {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plan
}

// Counts returns the derived totals of the current plan.
func (a *Aggregator) Counts() models.Counts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plan.Counts()
}

// UpdateActionStatus locates the action by variant and natural key and
// mutates only its status/error. When a structured-data action completes,
// the image's current metadata is committed as its new original snapshot so
// the next recomputation sees no further delta.
func (a *Aggregator) UpdateActionStatus(kind models.ActionKind, key string, status models.ActionStatus, errMsg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	action := a.plan.Find(kind, key)
	if action == nil {
		return fmt.Errorf("no %s action with key %q", kind, key)
	}

	state := action.State()
	if !canTransition(state.Status, status) {
		return fmt.Errorf("invalid status transition %s -> %s for %s action %q", state.Status, status, kind, key)
	}
	state.Status = status
	state.Error = errMsg

	if kind == models.KindStructuredData && status == models.StatusCompleted && a.form != nil {
		if img := a.form.ImageByID(key); img != nil {
			a.snaps.Commit(img)
		}
	}

	a.notifyCounts()
	return nil
}

// Refresh is a hard reset: it clears the plan and the stable key so the next
// Recompute runs a full pass. Used when external state may have drifted.
func (a *Aggregator) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plan = models.Plan{}
	a.lastKey = ""
	a.notifyCounts()
}

// notifyCounts must be called with the mutex held.
func (a *Aggregator) notifyCounts() {
	if a.onCounts != nil {
		a.onCounts(a.plan.Counts())
	}
}

// canTransition enforces the per-action state machine. Completed and error
// are terminal until a recomputation replaces the action.
func canTransition(from, to models.ActionStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case models.StatusPending:
		return to == models.StatusInProgress || to == models.StatusSkipped
	case models.StatusInProgress:
		return to == models.StatusCompleted || to == models.StatusError
	case models.StatusReady, models.StatusCompleted, models.StatusError, models.StatusSkipped:
		return false
	default:
		return false
	}
}

func findCategory(actions []*models.CategoryAction, name string) *models.CategoryAction {
	for _, a := range actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}
