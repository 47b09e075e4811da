package publish

import (
	"sync"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

// SnapshotStore caches the original (last-known-published) state of existing
// images. It is the diff baseline for the existing-image helpers: an image
// only produces update actions when its current metadata differs from its
// snapshot. Snapshots survive recomputation passes but not a process
// restart; after a restart the current state simply becomes the baseline.
type SnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]models.ImageSnapshot
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[string]models.ImageSnapshot)}
}

// Capture returns the image's snapshot, recording one on first sight. The
// repository-supplied original is preferred over the current in-form values
// so pre-existing local edits are not mistaken for published state.
func (s *SnapshotStore) Capture(img *models.ImageRecord) models.ImageSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.snaps[img.ID]; ok {
		return snap
	}
	var snap models.ImageSnapshot
	if img.OriginalFromRepo != nil {
		snap = *img.OriginalFromRepo
	} else {
		snap = img.Snapshot()
	}
	s.snaps[img.ID] = snap
	return snap
}

// Commit freezes the image's current metadata as its new baseline. Called
// when a structured-data action completes, so the next recomputation pass
// sees no further delta for this image.
func (s *SnapshotStore) Commit(img *models.ImageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[img.ID] = img.Snapshot()
}

// Get returns the stored snapshot without capturing one.
func (s *SnapshotStore) Get(imageID string) (models.ImageSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[imageID]
	return snap, ok
}

// Reset drops all snapshots.
func (s *SnapshotStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = make(map[string]models.ImageSnapshot)
}
