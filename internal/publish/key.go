package publish

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	"lukechampine.com/blake3"
)

// imageFingerprint is the slice of an image the builders actually consume.
type imageFingerprint struct {
	ID       string            `json:"id"`
	PageID   int               `json:"pageId"`
	FileName string            `json:"fileName"`
	Wikitext string            `json:"wikitext"`
	Members  []string          `json:"members"`
	Captions map[string]string `json:"captions"`
	Main     bool              `json:"main"`
	Date     string            `json:"date"`
	HasGPS   bool              `json:"hasGps"`
}

type formFingerprint struct {
	Workflow models.WorkflowKind `json:"workflow"`
	Event    models.EventDetails `json:"event"`
	OrgID    string              `json:"orgId"`
	Images   []imageFingerprint  `json:"images"`
	Manual   []string            `json:"manual"`
}

// StableKey derives a deterministic digest of every form field the builders
// consume. The raw form holds ephemeral object identities that differ on
// every edit round-trip; recomputing on reference changes would thrash, so
// the aggregator gates on this digest instead.
func StableKey(form *models.FormData) string {
	fp := formFingerprint{
		Workflow: form.Workflow,
		Event:    form.Event,
		OrgID:    form.OrganizationID(),
		Manual:   append([]string(nil), form.ManualCategories...),
	}
	sort.Strings(fp.Manual)

	for _, img := range form.AllImages() {
		ifp := imageFingerprint{
			ID:       img.ID,
			PageID:   img.CommonsPageID,
			FileName: img.FileName,
			Wikitext: img.Metadata.Wikitext,
			Members:  append([]string(nil), img.Metadata.SelectedBandMembers...),
			Captions: img.Metadata.Captions,
			Main:     img.Metadata.SetAsMainImage,
			HasGPS:   img.Metadata.GPS != nil,
		}
		if !img.Metadata.Date.IsZero() {
			ifp.Date = img.Metadata.Date.Format("2006-01-02T15:04:05")
		}
		fp.Images = append(fp.Images, ifp)
	}

	raw, err := json.Marshal(fp)
	if err != nil {
		// Marshalling plain structs cannot fail; fall back to recompute-always.
		return ""
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
