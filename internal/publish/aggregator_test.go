package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBuilder wraps another builder and counts category passes, the
// cheapest marker of a full recomputation.
type countingBuilder struct {
	Builder
	passes int
	fail   bool
}

func (c *countingBuilder) BuildCategoryActions(ctx context.Context, form *models.FormData) ([]*models.CategoryAction, error) {
	c.passes++
	if c.fail {
		return nil, errors.New("upstream unavailable")
	}
	return c.Builder.BuildCategoryActions(ctx, form)
}

func newCountingAggregator() (*Aggregator, *countingBuilder) {
	inner := newEventBuilder(nil, nil)
	cb := &countingBuilder{Builder: inner}
	return NewAggregator(cb, nil), cb
}

func TestRecomputeSkipsUnchangedForm(t *testing.T) {
	agg, cb := newCountingAggregator()
	form := festivalForm(nil, queuedImage("a.jpg"))

	ran, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	assert.False(t, ran, "identical form state must not trigger a second pass")
	assert.Equal(t, 1, cb.passes)

	form.Event.Title = "Renamed Festival"
	ran, err = agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, cb.passes)
}

func TestManualCategorySurvivesRecompute(t *testing.T) {
	agg, _ := newCountingAggregator()
	form := festivalForm(nil, queuedImage("a.jpg"))

	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	manual := agg.AddManualCategory("Hand picked")
	require.NotNil(t, manual)
	assert.True(t, manual.Manual)
	assert.True(t, manual.ShouldCreate)

	// Adding the same name again returns the existing action.
	assert.Same(t, manual, agg.AddManualCategory("Hand picked"))

	form.Event.Title = "Renamed Festival"
	_, err = agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	plan := agg.Plan()
	found := findCategory(plan.Categories, "Hand picked")
	require.NotNil(t, found)
	assert.Same(t, manual, found, "the manual action object must be preserved, not rebuilt")
}

func TestFailedRecomputeKeepsPreviousPlan(t *testing.T) {
	agg, cb := newCountingAggregator()
	form := festivalForm(nil, queuedImage("a.jpg"))

	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	before := agg.Counts()
	require.NotZero(t, before.Total)

	cb.fail = true
	form.Event.Title = "Renamed Festival"
	ran, err := agg.Recompute(context.Background(), form)
	assert.False(t, ran)
	require.Error(t, err)

	assert.Equal(t, before, agg.Counts(), "a failing pass must not clear the action list")

	// Once the upstream recovers the same form state computes cleanly.
	cb.fail = false
	ran, err = agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestStatusTransitions(t *testing.T) {
	agg, _ := newCountingAggregator()
	img := queuedImage("a.jpg")
	form := festivalForm(nil, img)

	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	// Pending actions must pass through in-progress; direct terminal
	// transitions are rejected.
	err = agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusCompleted, "")
	assert.Error(t, err)
	err = agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusError, "short-circuit")
	assert.Error(t, err)

	// pending -> in-progress -> completed
	require.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusInProgress, ""))
	require.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusCompleted, ""))

	// Completed is terminal until a recomputation replaces the action.
	err = agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusPending, "")
	assert.Error(t, err)
	err = agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusInProgress, "")
	assert.Error(t, err)

	// Same-status updates are no-ops, not violations.
	assert.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusCompleted, ""))

	// Unknown keys are reported.
	err = agg.UpdateActionStatus(models.KindImage, "no-such-image", models.StatusCompleted, "")
	assert.Error(t, err)

	// in-progress cannot be skipped.
	require.NoError(t, agg.UpdateActionStatus(models.KindStructuredData, img.ID, models.StatusInProgress, ""))
	err = agg.UpdateActionStatus(models.KindStructuredData, img.ID, models.StatusSkipped, "")
	assert.Error(t, err)
}

func TestErrorStatusCarriesMessage(t *testing.T) {
	agg, _ := newCountingAggregator()
	img := queuedImage("a.jpg")
	form := festivalForm(nil, img)

	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	require.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusInProgress, ""))
	require.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusError, "upload timed out"))

	action := agg.Plan().Find(models.KindImage, img.ID)
	require.NotNil(t, action)
	assert.Equal(t, models.StatusError, action.State().Status)
	assert.Equal(t, "upload timed out", action.State().Error)
	assert.Equal(t, 1, agg.Counts().Errors)
}

// TestSnapshotCommitOnCompletion: completing a structured-data action
// freezes the image's current metadata as the new baseline, so a forced
// recomputation of the unchanged image yields no further work.
func TestSnapshotCommitOnCompletion(t *testing.T) {
	agg, _ := newCountingAggregator()
	img := existingImage("a.jpg", 42)
	form := festivalForm(nil)
	form.ExistingImages = []*models.ImageRecord{img}

	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	img.Metadata.SelectedBandMembers = []string{"Q7"}
	agg.Refresh()
	_, err = agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	plan := agg.Plan()
	require.Len(t, plan.StructuredData, 1)
	require.NoError(t, agg.UpdateActionStatus(models.KindStructuredData, img.ID, models.StatusInProgress, ""))
	require.NoError(t, agg.UpdateActionStatus(models.KindStructuredData, img.ID, models.StatusCompleted, ""))

	agg.Refresh()
	_, err = agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	assert.Empty(t, agg.Plan().StructuredData, "committed state must not re-trigger an action")
}

func TestRefreshClearsPlanButKeepsSnapshots(t *testing.T) {
	agg, cb := newCountingAggregator()
	img := existingImage("a.jpg", 42)
	form := festivalForm(nil)
	form.ExistingImages = []*models.ImageRecord{img}

	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	baseline, ok := agg.Snapshots().Get(img.ID)
	require.True(t, ok)

	agg.Refresh()
	assert.Zero(t, agg.Counts().Total)

	// Refresh forces a full pass even on an unchanged form.
	ran, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, cb.passes)
	after, ok := agg.Snapshots().Get(img.ID)
	require.True(t, ok)
	assert.Equal(t, baseline, after)
}

func TestCountsListener(t *testing.T) {
	agg, _ := newCountingAggregator()
	var last models.Counts
	agg.OnCountsChanged(func(c models.Counts) { last = c })

	img := queuedImage("a.jpg")
	form := festivalForm(nil, img)
	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, agg.Counts(), last)

	require.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusInProgress, ""))
	require.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusCompleted, ""))
	assert.Equal(t, 1, last.Completed)
}
