package models

import (
	"strings"

	"github.com/google/uuid"
)

// PendingIDPrefix marks a locally created entity that has not been written to
// Wikidata yet. Entities carrying a pending id must never be used as an
// update target; a create action has to resolve them to a real Q-id first.
const PendingIDPrefix = "PENDING-"

// Wikidata property codes used by the uploader.
const (
	PropInstanceOf      = "P31"
	PropImage           = "P18"  // canonical/main image of an entity
	PropPerformer       = "P175" // performer of an event
	PropDepicts         = "P180" // structured data on Commons files
	PropGenre           = "P136"
	PropLocation        = "P276"
	PropCommonsCategory = "P373"
	PropInception       = "P571" // doubles as capture date on Commons SDC
	PropCoordinates     = "P625"
	PropHasPart         = "P527" // band/ensemble members
)

// ClaimKind identifies the typed value carried by a claim statement.
type ClaimKind string

const (
	ClaimEntity     ClaimKind = "wikibase-entityid"
	ClaimString     ClaimKind = "string"
	ClaimTime       ClaimKind = "time"
	ClaimCoordinate ClaimKind = "globecoordinate"
)

type (
	// Claim is a single statement value on an entity property. Exactly one
	// of the value fields is set, according to Kind.
	Claim struct {
		Kind       ClaimKind `json:"kind"`
		EntityID   string    `json:"entityId,omitempty"`
		Text       string    `json:"text,omitempty"`
		Time       string    `json:"time,omitempty"` // ISO date, e.g. "2024-06-01"
		Coordinate *GPS      `json:"coordinate,omitempty"`
	}

	// Entity is the local representation of a Wikidata record: labels and
	// descriptions keyed by language code, claims keyed by property code
	// (ordered statement lists), and sitelinks keyed by site id.
	Entity struct {
		ID           string             `json:"id"`
		Labels       map[string]string  `json:"labels,omitempty"`
		Descriptions map[string]string  `json:"descriptions,omitempty"`
		Claims       map[string][]Claim `json:"claims,omitempty"`
		Sitelinks    map[string]string  `json:"sitelinks,omitempty"`
	}
)

// NewPendingID allocates a placeholder id for an entity that only exists in
// the current session.
func NewPendingID() string {
	return PendingIDPrefix + uuid.NewString()
}

// IsPendingID reports whether id is a local placeholder rather than a real
// Wikidata id.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingIDPrefix)
}

// IsPending reports whether the entity has not been created remotely yet.
func (e *Entity) IsPending() bool {
	return IsPendingID(e.ID)
}

// Label returns the label for lang, falling back to English and then to any
// available language.
func (e *Entity) Label(lang string) string {
	if l, ok := e.Labels[lang]; ok && l != "" {
		return l
	}
	if l, ok := e.Labels["en"]; ok && l != "" {
		return l
	}
	for _, l := range e.Labels {
		if l != "" {
			return l
		}
	}
	return ""
}

// Description returns the description for lang with the same fallback rules
// as Label.
func (e *Entity) Description(lang string) string {
	if d, ok := e.Descriptions[lang]; ok && d != "" {
		return d
	}
	if d, ok := e.Descriptions["en"]; ok && d != "" {
		return d
	}
	for _, d := range e.Descriptions {
		if d != "" {
			return d
		}
	}
	return ""
}

// HasClaim reports whether at least one statement exists for the property.
func (e *Entity) HasClaim(property string) bool {
	return len(e.Claims[property]) > 0
}

// ClaimEntityIDs returns the entity-reference values of all statements for
// the property, in statement order.
func (e *Entity) ClaimEntityIDs(property string) []string {
	var ids []string
	for _, c := range e.Claims[property] {
		if c.Kind == ClaimEntity && c.EntityID != "" {
			ids = append(ids, c.EntityID)
		}
	}
	return ids
}

// ClaimString returns the first string value for the property, or "".
func (e *Entity) ClaimString(property string) string {
	for _, c := range e.Claims[property] {
		if c.Kind == ClaimString {
			return c.Text
		}
	}
	return ""
}

// ClaimTime returns the first time value for the property, or "".
func (e *Entity) ClaimTime(property string) string {
	for _, c := range e.Claims[property] {
		if c.Kind == ClaimTime {
			return c.Time
		}
	}
	return ""
}

// ClaimCoordinate returns the first coordinate value for the property, or nil.
func (e *Entity) ClaimCoordinate(property string) *GPS {
	for _, c := range e.Claims[property] {
		if c.Kind == ClaimCoordinate && c.Coordinate != nil {
			return c.Coordinate
		}
	}
	return nil
}

// AddClaim appends a statement to the property, allocating the claim map if
// needed.
func (e *Entity) AddClaim(property string, claim Claim) {
	if e.Claims == nil {
		e.Claims = make(map[string][]Claim)
	}
	e.Claims[property] = append(e.Claims[property], claim)
}
