package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/commons"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntityWriter struct {
	created []*models.Entity
	updated map[string][]models.PropertyChange
	nextID  int
	failAll bool
}

func (f *fakeEntityWriter) CreateEntity(_ context.Context, draft *models.Entity) (string, error) {
	if f.failAll {
		return "", errors.New("wikidata unavailable")
	}
	f.created = append(f.created, draft)
	f.nextID++
	return fmt.Sprintf("Q90%d", f.nextID), nil
}

func (f *fakeEntityWriter) UpdateEntity(_ context.Context, id string, changes []models.PropertyChange) error {
	if f.failAll {
		return errors.New("wikidata unavailable")
	}
	if f.updated == nil {
		f.updated = make(map[string][]models.PropertyChange)
	}
	f.updated[id] = append(f.updated[id], changes...)
	return nil
}

type fakeCommonsWriter struct {
	categories map[string]string
	uploads    map[string]string
	bodies     map[int]string
	sd         map[int]*commons.StructuredDataUpdate
	nextPageID int
	failUpload bool
}

func (f *fakeCommonsWriter) CreateCategory(_ context.Context, name, wikitext string) error {
	if f.categories == nil {
		f.categories = make(map[string]string)
	}
	f.categories[name] = wikitext
	return nil
}

func (f *fakeCommonsWriter) UploadFile(_ context.Context, fileName, wikitext, _ string, _ io.Reader) (int, error) {
	if f.failUpload {
		return 0, errors.New("upload refused")
	}
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[fileName] = wikitext
	f.nextPageID++
	return 100 + f.nextPageID, nil
}

func (f *fakeCommonsWriter) UpdatePageBody(_ context.Context, pageID int, wikitext string) error {
	if f.bodies == nil {
		f.bodies = make(map[int]string)
	}
	f.bodies[pageID] = wikitext
	return nil
}

func (f *fakeCommonsWriter) SetStructuredData(_ context.Context, pageID int, update *commons.StructuredDataUpdate) error {
	if f.sd == nil {
		f.sd = make(map[int]*commons.StructuredDataUpdate)
	}
	f.sd[pageID] = update
	return nil
}

func newExecutorForTest(t *testing.T, form *models.FormData) (*Executor, *fakeEntityWriter, *fakeCommonsWriter, *Aggregator) {
	t.Helper()
	agg := NewAggregator(newEventBuilder(nil, nil), nil)
	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	ew := &fakeEntityWriter{}
	cw := &fakeCommonsWriter{}
	ex := NewExecutor(agg, ew, cw)
	ex.openFile = func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("jpeg bytes")), nil
	}
	return ex, ew, cw, agg
}

func TestExecutorRunsFullPlan(t *testing.T) {
	img := queuedImage("testfest.jpg")
	form := festivalForm(nil, img)

	ex, ew, cw, agg := newExecutorForTest(t, form)
	var results []Result
	ex.OnResult = func(r Result) { results = append(results, r) }

	failures, err := ex.Run(context.Background(), form)
	require.NoError(t, err)
	assert.Zero(t, failures)

	// Event category was created on Commons.
	assert.Contains(t, cw.categories, "Test Festival 2024")

	// The pending event entity was created with its category claim.
	require.Len(t, ew.created, 1)
	assert.Equal(t, "Test Festival", ew.created[0].Labels["en"])
	assert.True(t, ew.created[0].HasClaim(models.PropCommonsCategory))

	// Upload happened and the page id flowed into structured data.
	assert.Contains(t, cw.uploads, "testfest.jpg")
	require.Len(t, cw.sd, 1)
	assert.Equal(t, 101, img.CommonsPageID)
	require.Contains(t, cw.sd, 101)
	assert.Equal(t, "2024-06-01", cw.sd[101].CaptureDate)

	// Every executed action completed and was reported.
	counts := agg.Counts()
	assert.Zero(t, counts.Pending)
	assert.Zero(t, counts.Errors)
	assert.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, models.StatusCompleted, r.Status)
	}
}

func TestExecutorFailedUploadBlocksStructuredData(t *testing.T) {
	img := queuedImage("testfest.jpg")
	form := festivalForm(nil, img)

	ex, _, cw, agg := newExecutorForTest(t, form)
	cw.failUpload = true

	failures, err := ex.Run(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, 2, failures, "the upload and its dependent structured-data write fail")
	assert.Empty(t, cw.sd)
	assert.Equal(t, 2, agg.Counts().Errors)

	// The failed actions carry their error message.
	action := agg.Plan().Find(models.KindImage, img.ID)
	require.NotNil(t, action)
	assert.Equal(t, models.StatusError, action.State().Status)
	assert.Contains(t, action.State().Error, "upload refused")
}

func TestExecutorSkipsNonPendingActions(t *testing.T) {
	img := queuedImage("testfest.jpg")
	form := festivalForm(nil, img)

	ex, _, cw, agg := newExecutorForTest(t, form)
	require.NoError(t, agg.UpdateActionStatus(models.KindImage, img.ID, models.StatusSkipped, ""))

	failures, err := ex.Run(context.Background(), form)
	require.NoError(t, err)
	assert.Empty(t, cw.uploads, "skipped actions must not execute")
	// The structured-data action still ran and failed: no page id exists.
	assert.Equal(t, 1, failures)
}

func TestExecutorResolvesPendingDepicts(t *testing.T) {
	pendingOrg := &models.Entity{
		ID:     models.NewPendingID(),
		Labels: map[string]string{"en": "New Band"},
	}
	img := queuedImage("band.jpg")
	form := festivalForm(pendingOrg, img)
	form.Event.WikidataID = "Q900" // keep the event out of the create path

	agg := NewAggregator(newEventBuilder(&fakeWikidata{entities: map[string]*models.Entity{
		"Q900": func() *models.Entity {
			e := entityWithLabel("Q900", "Test Festival")
			e.AddClaim(models.PropCommonsCategory, models.Claim{Kind: models.ClaimString, Text: "Test Festival 2024"})
			return e
		}(),
	}}, &fakeCommons{existing: map[string]bool{"Test Festival 2024": true}}), nil)
	_, err := agg.Recompute(context.Background(), form)
	require.NoError(t, err)

	ew := &fakeEntityWriter{}
	cw := &fakeCommonsWriter{}
	ex := NewExecutor(agg, ew, cw)
	ex.openFile = func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("jpeg bytes")), nil
	}

	failures, err := ex.Run(context.Background(), form)
	require.NoError(t, err)
	assert.Zero(t, failures)

	// The organization was created, and the structured-data depicts use the
	// assigned id, not the placeholder.
	require.Len(t, ew.created, 1)
	require.Len(t, cw.sd, 1)
	for _, update := range cw.sd {
		require.Len(t, update.Depicts, 1)
		assert.False(t, models.IsPendingID(update.Depicts[0]))
	}
}
