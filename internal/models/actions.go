package models

import "strings"

// ActionStatus is the lifecycle state of one reconciliation action.
//
// pending -> in-progress -> completed | error. "ready" is terminal straight
// from computation (nothing to do, already satisfied). "skipped" is reachable
// from pending when the operator declines an action. Completed and error
// states are only left by a fresh recomputation replacing the action.
type ActionStatus string

const (
	StatusPending    ActionStatus = "pending"
	StatusReady      ActionStatus = "ready"
	StatusInProgress ActionStatus = "in-progress"
	StatusCompleted  ActionStatus = "completed"
	StatusError      ActionStatus = "error"
	StatusSkipped    ActionStatus = "skipped"
)

// ActionKind tags the four action variants.
type ActionKind string

const (
	KindCategory       ActionKind = "category"
	KindEntity         ActionKind = "wikidata"
	KindImage          ActionKind = "image"
	KindStructuredData ActionKind = "structured-data"
)

// ActionState is the mutable status/error pair embedded in every variant.
type ActionState struct {
	Status ActionStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// State exposes the embedded state for generic status updates.
func (s *ActionState) State() *ActionState { return s }

// Action is the common surface of the four variants. Keys are natural,
// per-variant identifiers computed at construction, so callers never need to
// switch on the variant to recover an action's identity.
type Action interface {
	Kind() ActionKind
	Key() string
	State() *ActionState
}

type (
	// CategoryAction creates (or confirms) one Commons category page.
	CategoryAction struct {
		ActionState
		Name         string `json:"name"`
		ShouldCreate bool   `json:"shouldCreate"`
		Parent       string `json:"parent,omitempty"`
		Description  string `json:"description,omitempty"`
		// Manual marks operator-added ad hoc categories; the aggregator
		// re-inserts them after every recomputation instead of deriving
		// them from form state.
		Manual bool `json:"manual,omitempty"`
	}

	// PropertyChange is one claim to add or replace on an entity.
	PropertyChange struct {
		Property string `json:"property"`
		Claim    Claim  `json:"claim"`
	}

	// EntityAction creates a Wikidata entity or adds claims to one.
	EntityAction struct {
		ActionState
		ActionKey   string           `json:"key"`
		EntityID    string           `json:"entityId"`
		Op          EntityOp         `json:"op"`
		Label       string           `json:"label,omitempty"`       // create only
		Description string           `json:"description,omitempty"` // create only
		Changes     []PropertyChange `json:"changes,omitempty"`
	}

	// ImageAction uploads a queued image or rewrites the page body of an
	// existing one.
	ImageAction struct {
		ActionState
		ImageID  string  `json:"imageId"`
		Op       ImageOp `json:"op"`
		FileName string  `json:"fileName"`
		PageID   int     `json:"pageId,omitempty"`
		Wikitext string  `json:"wikitext"`
		// Depicts is the computed union of the primary organization id and
		// the per-image selected member ids, organization first.
		Depicts []string `json:"depicts,omitempty"`
	}

	// StructuredDataAction publishes depicts/captions/date/coordinates on a
	// file page. The *Changed flags record which parts actually need a
	// write; executors may still republish all of them in one call.
	StructuredDataAction struct {
		ActionState
		ImageID         string            `json:"imageId"`
		PageID          int               `json:"pageId,omitempty"`
		Depicts         []string          `json:"depicts,omitempty"`
		DepictsChanged  bool              `json:"depictsChanged"`
		Captions        map[string]string `json:"captions,omitempty"`
		CaptionsChanged bool              `json:"captionsChanged"`
		CaptureDate     string            `json:"captureDate,omitempty"`
		DateChanged     bool              `json:"dateChanged"`
		GPS             *GPS              `json:"gps,omitempty"`
		GPSChanged      bool              `json:"gpsChanged"`
	}
)

// EntityOp distinguishes entity creation from claim updates.
type EntityOp string

const (
	EntityCreate EntityOp = "create"
	EntityUpdate EntityOp = "update"
)

// ImageOp distinguishes fresh uploads from page-body rewrites.
type ImageOp string

const (
	ImageUpload         ImageOp = "upload"
	ImageUpdateMetadata ImageOp = "update-metadata"
)

func (a *CategoryAction) Kind() ActionKind { return KindCategory }
func (a *CategoryAction) Key() string      { return a.Name }

func (a *EntityAction) Kind() ActionKind { return KindEntity }
func (a *EntityAction) Key() string      { return a.ActionKey }

func (a *ImageAction) Kind() ActionKind { return KindImage }
func (a *ImageAction) Key() string      { return a.ImageID }

func (a *StructuredDataAction) Kind() ActionKind { return KindStructuredData }
func (a *StructuredDataAction) Key() string      { return a.ImageID }

// NewCreateEntityAction builds a pending create action for a placeholder id.
func NewCreateEntityAction(pendingID, label, description string, changes []PropertyChange) *EntityAction {
	return &EntityAction{
		ActionState: ActionState{Status: StatusPending},
		ActionKey:   pendingID,
		EntityID:    pendingID,
		Op:          EntityCreate,
		Label:       label,
		Description: description,
		Changes:     changes,
	}
}

// NewUpdateEntityAction builds a pending update action. The key combines the
// entity id with the changed properties (and any string value) so competing
// updates against the same entity, such as two main-image candidates, stay
// individually addressable.
func NewUpdateEntityAction(entityID string, changes []PropertyChange) *EntityAction {
	parts := []string{entityID}
	for _, ch := range changes {
		parts = append(parts, ch.Property)
		if ch.Claim.Text != "" {
			parts = append(parts, ch.Claim.Text)
		}
	}
	return &EntityAction{
		ActionState: ActionState{Status: StatusPending},
		ActionKey:   strings.Join(parts, "/"),
		EntityID:    entityID,
		Op:          EntityUpdate,
		Changes:     changes,
	}
}

// Plan holds the four derived action lists of one recomputation pass.
type Plan struct {
	Categories     []*CategoryAction       `json:"categories"`
	Entities       []*EntityAction         `json:"entities"`
	Images         []*ImageAction          `json:"images"`
	StructuredData []*StructuredDataAction `json:"structuredData"`
}

// All flattens the plan into a single slice in category, entity, image,
// structured-data order.
func (p Plan) All() []Action {
	out := make([]Action, 0, len(p.Categories)+len(p.Entities)+len(p.Images)+len(p.StructuredData))
	for _, a := range p.Categories {
		out = append(out, a)
	}
	for _, a := range p.Entities {
		out = append(out, a)
	}
	for _, a := range p.Images {
		out = append(out, a)
	}
	for _, a := range p.StructuredData {
		out = append(out, a)
	}
	return out
}

// Find locates an action by variant and natural key.
func (p Plan) Find(kind ActionKind, key string) Action {
	for _, a := range p.All() {
		if a.Kind() == kind && a.Key() == key {
			return a
		}
	}
	return nil
}

// Counts are the aggregate numbers surfaced to progress indicators.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

// Counts tallies the plan by status. Ready and skipped actions count toward
// the total but neither as pending nor completed.
func (p Plan) Counts() Counts {
	var c Counts
	for _, a := range p.All() {
		c.Total++
		switch a.State().Status {
		case StatusPending, StatusInProgress:
			c.Pending++
		case StatusCompleted:
			c.Completed++
		case StatusError:
			c.Errors++
		}
	}
	return c
}
