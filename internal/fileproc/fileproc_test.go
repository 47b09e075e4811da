package fileproc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

// fakeReader returns canned embedded metadata.
type fakeReader struct {
	meta Metadata
	err  error
}

func (f fakeReader) Read(string) (Metadata, error) { return f.meta, f.err }

func testConfig() models.Config {
	return models.Config{
		Author:  "[[User:Tester|Tester]]",
		License: "Cc-by-sa-4.0",
	}
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concert_shot.jpg")
	if err := os.WriteFile(path, []byte("not really a jpeg"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestProcessWithExifDate(t *testing.T) {
	captured := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	gps := &models.GPS{Lat: 55.67, Lon: 12.56}
	p := NewProcessor(testConfig(), fakeReader{meta: Metadata{CaptureTime: &captured, GPS: gps}})

	record, err := p.Process(writeTestImage(t))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	defer p.Release(record)

	if !record.Metadata.DateFromExif {
		t.Error("DateFromExif = false, want true")
	}
	if !record.Metadata.Date.Equal(captured) {
		t.Errorf("Date = %v, want %v", record.Metadata.Date, captured)
	}
	if record.Metadata.GPS == nil || record.Metadata.GPS.Lat != 55.67 {
		t.Errorf("GPS = %v, want %v", record.Metadata.GPS, gps)
	}
	if record.Hash == "" {
		t.Error("Hash is empty")
	}
	if record.Size == 0 {
		t.Error("Size is zero")
	}
	if record.IsUploaded() {
		t.Error("fresh record reports IsUploaded")
	}
}

func TestProcessFallbackDate(t *testing.T) {
	p := NewProcessor(testConfig(), NoopReader{})
	fixed := time.Date(2024, 8, 26, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	record, err := p.Process(writeTestImage(t))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	defer p.Release(record)

	if record.Metadata.DateFromExif {
		t.Error("DateFromExif = true, want false for fallback")
	}
	if !record.Metadata.Date.Equal(fixed) {
		t.Errorf("Date = %v, want fallback %v", record.Metadata.Date, fixed)
	}
	if record.Metadata.GPS != nil {
		t.Errorf("GPS = %v, want nil (no fallback for coordinates)", record.Metadata.GPS)
	}
}

func TestProcessReaderErrorUsesFallback(t *testing.T) {
	p := NewProcessor(testConfig(), fakeReader{err: os.ErrInvalid})

	record, err := p.Process(writeTestImage(t))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	defer p.Release(record)

	if record.Metadata.DateFromExif {
		t.Error("DateFromExif = true after reader error, want false")
	}
}

func TestReleaseRemovesPreview(t *testing.T) {
	p := NewProcessor(testConfig(), NoopReader{})

	record, err := p.Process(writeTestImage(t))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	preview := record.PreviewPath
	if preview == "" {
		t.Fatal("no preview allocated")
	}
	if _, err := os.Stat(preview); err != nil {
		t.Fatalf("preview file missing before release: %v", err)
	}

	p.Release(record)
	if _, err := os.Stat(preview); !os.IsNotExist(err) {
		t.Errorf("preview file still present after release: %v", err)
	}
	if record.PreviewPath != "" {
		t.Error("PreviewPath not cleared by Release")
	}

	// Releasing twice must be harmless.
	p.Release(record)
}

func TestRenderWikitext(t *testing.T) {
	meta := models.ImageMetadata{
		Description: "Band on main stage",
		Author:      "[[User:Tester|Tester]]",
		Date:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		License:     "Cc-by-sa-4.0",
		Categories:  []string{"Test Festival 2024", "The Examples at Test Festival 2024"},
		GPS:         &models.GPS{Lat: 55.67, Lon: 12.56},
	}
	got := RenderWikitext(meta)

	for _, want := range []string{
		"{{Information",
		"|description={{en|1=Band on main stage}}",
		"|date=2024-06-01 10:00",
		"|author=[[User:Tester|Tester]]",
		"{{Location|55.670000|12.560000}}",
		"{{Cc-by-sa-4.0}}",
		"[[Category:Test Festival 2024]]",
		"[[Category:The Examples at Test Festival 2024]]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderWikitext() missing %q in:\n%s", want, got)
		}
	}

	// Category order must follow the metadata order.
	first := strings.Index(got, "[[Category:Test Festival 2024]]")
	second := strings.Index(got, "[[Category:The Examples at Test Festival 2024]]")
	if first > second {
		t.Error("categories rendered out of order")
	}
}
