package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/fileproc"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

func TestApplyEventCategories(t *testing.T) {
	form := &models.FormData{Event: models.EventDetails{
		Title: "Test Festival",
		Kind:  models.EventFestival,
		Date:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}}
	record := &models.ImageRecord{
		FileName: "a.jpg",
		Metadata: models.ImageMetadata{Author: "Someone", License: "cc-by-sa-4.0"},
	}
	record.Metadata.Wikitext = fileproc.RenderWikitext(record.Metadata)
	if strings.Contains(record.Metadata.Wikitext, "[[Category:") {
		t.Fatal("fresh record must not carry category links yet")
	}

	applyEventCategories(form, record)

	if len(record.Metadata.Categories) != 1 || record.Metadata.Categories[0] != "Test Festival 2024" {
		t.Errorf("Categories = %v, want [Test Festival 2024]", record.Metadata.Categories)
	}
	if !strings.Contains(record.Metadata.Wikitext, "[[Category:Test Festival 2024]]") {
		t.Errorf("rendered page body misses the category link:\n%s", record.Metadata.Wikitext)
	}
}

func TestApplyEventCategoriesWithoutEvent(t *testing.T) {
	record := &models.ImageRecord{FileName: "a.jpg"}
	record.Metadata.Wikitext = fileproc.RenderWikitext(record.Metadata)
	before := record.Metadata.Wikitext

	applyEventCategories(&models.FormData{}, record)

	if len(record.Metadata.Categories) != 0 {
		t.Errorf("Categories = %v, want none", record.Metadata.Categories)
	}
	if record.Metadata.Wikitext != before {
		t.Error("page body must be untouched when no event is set")
	}
}
