package models

import (
	"time"

	"github.com/google/uuid"
)

type (
	Config struct {
		// Connection/Auth
		CommonsApiUrl  string `toml:"CommonsApiUrl"`
		WikidataApiUrl string `toml:"WikidataApiUrl"`
		AccessToken    string `toml:"AccessToken"`
		UserAgent      string `toml:"UserAgent"`

		// Paths
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Upload defaults
		Author   string `toml:"Author"`   // pre-formatted wiki-link, e.g. "[[User:Someone|Someone]]"
		License  string `toml:"License"`  // license template name, e.g. "Cc-by-sa-4.0"
		Language string `toml:"Language"` // default caption/description language

		// API Behavior
		Concurrency         int     `toml:"Concurrency"`
		RequestsPerSecond   float64 `toml:"RequestsPerSecond"`
		ApiClientTimeoutSec int     `toml:"ApiClientTimeoutSec"`
		LogApiRequests      bool    `toml:"LogApiRequests"`

		// Other
		SkipConfirmation     bool `toml:"SkipConfirmation"`
		SuggestionTTLMinutes int  `toml:"SuggestionTTLMinutes"`
	}

	// GPS is a WGS84 coordinate pair.
	GPS struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}

	// EventDetails describes the event a batch of images belongs to. It is
	// created once per session from user input and only changes through the
	// session form channel.
	EventDetails struct {
		Title           string    `json:"title"`
		Kind            EventKind `json:"kind"`
		Date            time.Time `json:"date"`
		CommonsCategory string    `json:"commonsCategory,omitempty"` // overrides the derived category name
		WikidataID      string    `json:"wikidataId,omitempty"`
		Language        string    `json:"language"`
		Coordinates     *GPS      `json:"coordinates,omitempty"`
	}

	// ImageMetadata is the mutable per-image metadata bag edited during a
	// session.
	ImageMetadata struct {
		Description         string            `json:"description"`
		Author              string            `json:"author"` // pre-formatted wiki-link string
		Date                time.Time         `json:"date"`
		DateFromExif        bool              `json:"dateFromExif"` // false means same-day fallback was used
		Categories          []string          `json:"categories"`   // ordered; order affects rendering
		SelectedBandMembers []string          `json:"selectedBandMembers,omitempty"`
		Captions            map[string]string `json:"captions,omitempty"` // language code -> short text
		Wikitext            string            `json:"wikitext"`
		WikitextDirty       bool              `json:"wikitextDirty"`
		License             string            `json:"license"`
		GPS                 *GPS              `json:"gps,omitempty"`
		SetAsMainImage      bool              `json:"setAsMainImage,omitempty"`
	}

	// ImageRecord is one queue item or already-published file. A zero
	// CommonsPageID means the image is still queued for upload; a non-zero
	// one identifies the remote file page.
	ImageRecord struct {
		ID            string        `json:"id"`
		FilePath      string        `json:"filePath"`
		FileName      string        `json:"fileName"` // target Commons title, without "File:" prefix
		PreviewPath   string        `json:"previewPath,omitempty"`
		Size          int64         `json:"size"`
		Hash          string        `json:"hash"` // blake3 of file content, uppercase hex
		CommonsPageID int           `json:"commonsPageId,omitempty"`
		Metadata      ImageMetadata `json:"metadata"`

		// OriginalFromRepo carries the repository-side state at load time
		// for existing images. When present it is preferred over the
		// current in-form values as the diff baseline, so pre-existing
		// local edits are not mistaken for published state.
		OriginalFromRepo *ImageSnapshot `json:"originalFromRepo,omitempty"`

		// SkipDuplicateCheck is set when the operator confirmed an "add
		// anyway" on a detected duplicate; the detector ignores the file on
		// subsequent passes.
		SkipDuplicateCheck bool `json:"skipDuplicateCheck,omitempty"`
	}

	// ImageSnapshot is the last-known-published version of an existing
	// image's mutable fields, used purely as a diff baseline.
	ImageSnapshot struct {
		Wikitext string            `json:"wikitext"`
		Members  []string          `json:"members"`
		Captions map[string]string `json:"captions"`
	}

	// FormData is the typed session aggregate the action builders consume.
	FormData struct {
		Workflow         WorkflowKind   `json:"workflow"`
		Event            EventDetails   `json:"event"`
		Organization     *Entity        `json:"organization,omitempty"` // primary band/organization
		QueuedImages     []*ImageRecord `json:"queuedImages"`
		ExistingImages   []*ImageRecord `json:"existingImages"`
		ManualCategories []string       `json:"manualCategories,omitempty"`
	}
)

// EventKind selects the category/description derivation variant.
type EventKind string

const (
	EventFestival EventKind = "festival"
	EventConcert  EventKind = "concert"
	EventGeneric  EventKind = "event"
)

// WorkflowKind selects the action-builder implementation.
type WorkflowKind string

const (
	// WorkflowMusicEvent is the specialized festival/concert workflow with
	// performer categories and event-entity handling.
	WorkflowMusicEvent WorkflowKind = "music-event"
	// WorkflowGeneral builds only image and structured-data actions.
	WorkflowGeneral WorkflowKind = "general"
)

// NewImageID allocates a session-local image id.
func NewImageID() string {
	return uuid.NewString()
}

// IsUploaded reports whether the image already has a Commons file page.
func (r *ImageRecord) IsUploaded() bool {
	return r.CommonsPageID != 0
}

// Snapshot copies the diffable metadata fields into an ImageSnapshot.
func (r *ImageRecord) Snapshot() ImageSnapshot {
	members := make([]string, len(r.Metadata.SelectedBandMembers))
	copy(members, r.Metadata.SelectedBandMembers)
	captions := make(map[string]string, len(r.Metadata.Captions))
	for lang, text := range r.Metadata.Captions {
		captions[lang] = text
	}
	return ImageSnapshot{
		Wikitext: r.Metadata.Wikitext,
		Members:  members,
		Captions: captions,
	}
}

// AllImages returns queued followed by existing images.
func (f *FormData) AllImages() []*ImageRecord {
	out := make([]*ImageRecord, 0, len(f.QueuedImages)+len(f.ExistingImages))
	out = append(out, f.QueuedImages...)
	out = append(out, f.ExistingImages...)
	return out
}

// ImageByID finds an image across the queued and existing sets.
func (f *FormData) ImageByID(id string) *ImageRecord {
	for _, img := range f.AllImages() {
		if img.ID == id {
			return img
		}
	}
	return nil
}

// OrganizationID returns the selected organization's entity id, or "".
func (f *FormData) OrganizationID() string {
	if f.Organization == nil {
		return ""
	}
	return f.Organization.ID
}
