package dedupe

import (
	"testing"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

func record(name, hash string, size int64) *models.ImageRecord {
	return &models.ImageRecord{
		ID:       models.NewImageID(),
		FileName: name,
		Hash:     hash,
		Size:     size,
	}
}

func TestPartition(t *testing.T) {
	existingA := record("a.jpg", "AABB", 100)

	tests := []struct {
		name           string
		candidates     []*models.ImageRecord
		existing       []*models.ImageRecord
		wantValid      int
		wantDuplicates int
	}{
		{
			name:           "Byte-identical duplicate plus distinct file",
			candidates:     []*models.ImageRecord{record("a-copy.jpg", "AABB", 100), record("b.jpg", "CCDD", 200)},
			existing:       []*models.ImageRecord{existingA},
			wantValid:      1,
			wantDuplicates: 1,
		},
		{
			name:           "No existing images",
			candidates:     []*models.ImageRecord{record("a.jpg", "AABB", 100)},
			existing:       nil,
			wantValid:      1,
			wantDuplicates: 0,
		},
		{
			name:           "Hash case-insensitive",
			candidates:     []*models.ImageRecord{record("other.jpg", "aabb", 100)},
			existing:       []*models.ImageRecord{existingA},
			wantValid:      0,
			wantDuplicates: 1,
		},
		{
			name:           "Name and size heuristic when hash missing",
			candidates:     []*models.ImageRecord{record("a.jpg", "", 100)},
			existing:       []*models.ImageRecord{record("a.jpg", "", 100)},
			wantValid:      0,
			wantDuplicates: 1,
		},
		{
			name:           "Same name different size is not a duplicate",
			candidates:     []*models.ImageRecord{record("a.jpg", "", 150)},
			existing:       []*models.ImageRecord{record("a.jpg", "", 100)},
			wantValid:      1,
			wantDuplicates: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Partition(tt.candidates, tt.existing)
			if len(got.Valid) != tt.wantValid {
				t.Errorf("Valid = %d, want %d", len(got.Valid), tt.wantValid)
			}
			if len(got.Duplicates) != tt.wantDuplicates {
				t.Errorf("Duplicates = %d, want %d", len(got.Duplicates), tt.wantDuplicates)
			}
		})
	}
}

func TestPartitionDuplicatePairing(t *testing.T) {
	existing := record("a.jpg", "AABB", 100)
	dup := record("a-copy.jpg", "AABB", 100)
	fresh := record("b.jpg", "CCDD", 200)

	got := Partition([]*models.ImageRecord{dup, fresh}, []*models.ImageRecord{existing})

	if len(got.Valid) != 1 || got.Valid[0].ID != fresh.ID {
		t.Fatalf("Valid = %v, want exactly the fresh record", got.Valid)
	}
	if len(got.Duplicates) != 1 {
		t.Fatalf("Duplicates = %d, want 1", len(got.Duplicates))
	}
	conflict := got.Duplicates[0]
	if conflict.Candidate.ID != dup.ID {
		t.Errorf("Conflict candidate = %s, want %s", conflict.Candidate.ID, dup.ID)
	}
	if len(conflict.Existing) != 1 || conflict.Existing[0].ID != existing.ID {
		t.Errorf("Conflict existing = %v, want the colliding record", conflict.Existing)
	}
}

func TestPartitionSkipBypassesCheck(t *testing.T) {
	existing := record("a.jpg", "AABB", 100)
	confirmed := record("a-copy.jpg", "AABB", 100)
	confirmed.SkipDuplicateCheck = true

	got := Partition([]*models.ImageRecord{confirmed}, []*models.ImageRecord{existing})
	if len(got.Valid) != 1 || len(got.Duplicates) != 0 {
		t.Errorf("confirmed duplicate not bypassed: valid=%d duplicates=%d", len(got.Valid), len(got.Duplicates))
	}
}
