// Package categories derives Commons category names and human-readable
// descriptions from event metadata. Everything here is pure string work; the
// existence checks against the live wiki live in the publish package.
package categories

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

// CategorySpec describes one category page that may need creating.
type CategorySpec struct {
	Name        string
	Parent      string
	Description string
}

// EventCategory returns the main category name for the event: the explicit
// override when set, otherwise "Title YYYY" (the year is not doubled when
// the title already ends with it).
func EventCategory(event models.EventDetails) string {
	if event.CommonsCategory != "" {
		return event.CommonsCategory
	}
	name := strings.TrimSpace(event.Title)
	if name == "" {
		return ""
	}
	if event.Date.IsZero() {
		return name
	}
	year := strconv.Itoa(event.Date.Year())
	if strings.HasSuffix(name, year) {
		return name
	}
	return name + " " + year
}

// PerformerAtEvent returns the composite "<performer> at <event category>"
// category name.
func PerformerAtEvent(performerLabel string, event models.EventDetails) string {
	performerLabel = strings.TrimSpace(performerLabel)
	eventCategory := EventCategory(event)
	if performerLabel == "" || eventCategory == "" {
		return ""
	}
	return performerLabel + " at " + eventCategory
}

// GenerateCategories returns the category names every image of the event
// should carry.
func GenerateCategories(event models.EventDetails) []string {
	main := EventCategory(event)
	if main == "" {
		return nil
	}
	return []string{main}
}

// CategoriesToCreate returns the category pages the event needs, each with a
// parent category appropriate for the event kind.
func CategoriesToCreate(event models.EventDetails) []CategorySpec {
	main := EventCategory(event)
	if main == "" {
		return nil
	}
	return []CategorySpec{{
		Name:        main,
		Parent:      parentCategory(event),
		Description: GenerateDescription(event),
	}}
}

// GenerateDescription returns a one-line English description of the event,
// varied by kind.
func GenerateDescription(event models.EventDetails) string {
	title := strings.TrimSpace(event.Title)
	when := ""
	if !event.Date.IsZero() {
		when = fmt.Sprintf(" in %d", event.Date.Year())
	}
	switch event.Kind {
	case models.EventFestival:
		return fmt.Sprintf("Photographs from the music festival %s%s.", title, when)
	case models.EventConcert:
		return fmt.Sprintf("Photographs from the concert %s%s.", title, when)
	default:
		return fmt.Sprintf("Photographs from %s%s.", title, when)
	}
}

// CategoryWikitext renders the initial page body for a new category.
func CategoryWikitext(spec CategorySpec) string {
	var b strings.Builder
	if spec.Description != "" {
		b.WriteString(spec.Description)
		b.WriteString("\n\n")
	}
	if spec.Parent != "" {
		fmt.Fprintf(&b, "[[Category:%s]]\n", spec.Parent)
	}
	return b.String()
}

func parentCategory(event models.EventDetails) string {
	if event.Date.IsZero() {
		return ""
	}
	year := event.Date.Year()
	switch event.Kind {
	case models.EventFestival:
		return fmt.Sprintf("%d music festivals", year)
	case models.EventConcert:
		return fmt.Sprintf("Concerts in %d", year)
	default:
		return fmt.Sprintf("Events in %d", year)
	}
}
