package publish

import (
	"context"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

// GeneralBuilder is the fallback workflow: no domain category or entity
// derivation, only image uploads/updates and their structured data.
type GeneralBuilder struct {
	baseBuilder
}

func (b *GeneralBuilder) BuildCategoryActions(ctx context.Context, form *models.FormData) ([]*models.CategoryAction, error) {
	return nil, nil
}

// BuildEntityActions is empty for the general workflow; knowledge-base
// writes, main-image promotion included, belong to the event variant.
func (b *GeneralBuilder) BuildEntityActions(ctx context.Context, form *models.FormData) ([]*models.EntityAction, error) {
	return nil, nil
}

func (b *GeneralBuilder) BuildImageActions(ctx context.Context, form *models.FormData, snaps *SnapshotStore) ([]*models.ImageAction, error) {
	actions := b.newImageActions(form)
	return append(actions, b.existingImageActions(form, snaps)...), nil
}

func (b *GeneralBuilder) BuildStructuredDataActions(ctx context.Context, form *models.FormData, snaps *SnapshotStore) ([]*models.StructuredDataAction, error) {
	actions := b.newStructuredDataActions(form)
	return append(actions, b.existingStructuredDataActions(form, snaps)...), nil
}
