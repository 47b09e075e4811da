// Package fileproc turns raw image files into ImageRecords: capture time and
// GPS from embedded metadata (via a collaborator interface, with a same-day
// fallback for the date), default rights metadata, an initial rendered page
// body, and a preview handle the caller must release when the record is
// discarded.
package fileproc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Metadata is what an embedded-metadata reader can recover from a file.
// Either field may be nil when the file carries no such data.
type Metadata struct {
	CaptureTime *time.Time
	GPS         *models.GPS
}

// MetadataReader extracts embedded capture metadata from an image file. The
// actual EXIF decoding is a collaborator concern; tests and the default CLI
// wiring use NoopReader.
type MetadataReader interface {
	Read(path string) (Metadata, error)
}

// NoopReader reports no embedded metadata, forcing the date fallback.
type NoopReader struct{}

func (NoopReader) Read(string) (Metadata, error) { return Metadata{}, nil }

// Processor builds ImageRecords from files.
type Processor struct {
	cfg        models.Config
	reader     MetadataReader
	previewDir string
	now        func() time.Time
}

// NewProcessor creates a Processor. A nil reader falls back to NoopReader.
func NewProcessor(cfg models.Config, reader MetadataReader) *Processor {
	if reader == nil {
		reader = NoopReader{}
	}
	return &Processor{
		cfg:        cfg,
		reader:     reader,
		previewDir: filepath.Join(os.TempDir(), "wikiportraits-previews"),
		now:        time.Now,
	}
}

// Process reads the file at path and produces a queued ImageRecord. The
// returned record holds a preview handle; call Release when discarding it
// without publishing.
func (p *Processor) Process(path string) (*models.ImageRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sum := blake3.Sum256(content)
	hash := strings.ToUpper(fmt.Sprintf("%x", sum[:]))

	record := &models.ImageRecord{
		ID:       models.NewImageID(),
		FilePath: path,
		FileName: filepath.Base(path),
		Size:     info.Size(),
		Hash:     hash,
	}

	meta, err := p.reader.Read(path)
	if err != nil {
		// Metadata failures are not fatal; the fallback path covers them.
		log.WithError(err).Warnf("Failed to read embedded metadata from %s", path)
		meta = Metadata{}
	}

	if meta.CaptureTime != nil {
		record.Metadata.Date = *meta.CaptureTime
		record.Metadata.DateFromExif = true
	} else {
		// Same-day fallback. DateFromExif stays false so downstream
		// category/description logic can treat the date as untrusted.
		record.Metadata.Date = p.now()
		record.Metadata.DateFromExif = false
	}
	record.Metadata.GPS = meta.GPS // no fallback for coordinates

	record.Metadata.Author = p.cfg.Author
	record.Metadata.License = p.cfg.License
	record.Metadata.Wikitext = RenderWikitext(record.Metadata)

	preview, err := p.allocatePreview(path, record.ID)
	if err != nil {
		log.WithError(err).Warnf("Failed to allocate preview for %s", path)
	} else {
		record.PreviewPath = preview
	}

	return record, nil
}

// Release frees the preview handle of a discarded record. Safe to call on
// records without a preview.
func (p *Processor) Release(record *models.ImageRecord) {
	if record == nil || record.PreviewPath == "" {
		return
	}
	if err := os.Remove(record.PreviewPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warnf("Failed to remove preview %s", record.PreviewPath)
	}
	record.PreviewPath = ""
}

// allocatePreview links (or copies) the file into the preview directory.
func (p *Processor) allocatePreview(path, id string) (string, error) {
	if err := os.MkdirAll(p.previewDir, 0700); err != nil {
		return "", fmt.Errorf("creating preview directory: %w", err)
	}
	target := filepath.Join(p.previewDir, id+filepath.Ext(path))
	if err := os.Link(path, target); err == nil {
		return target, nil
	}
	// Hard link failed (different filesystem, permissions); copy instead.
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(target)
		return "", err
	}
	return target, nil
}

// RenderWikitext serializes the metadata bag into a Commons file page body:
// an Information template, an optional Location template, the license
// section and the category links.
func RenderWikitext(meta models.ImageMetadata) string {
	var b strings.Builder

	b.WriteString("=={{int:filedesc}}==\n")
	b.WriteString("{{Information\n")
	fmt.Fprintf(&b, "|description={{en|1=%s}}\n", meta.Description)
	if !meta.Date.IsZero() {
		fmt.Fprintf(&b, "|date=%s\n", meta.Date.Format("2006-01-02 15:04"))
	} else {
		b.WriteString("|date=\n")
	}
	b.WriteString("|source={{own}}\n")
	fmt.Fprintf(&b, "|author=%s\n", meta.Author)
	b.WriteString("}}\n")
	if meta.GPS != nil {
		fmt.Fprintf(&b, "{{Location|%f|%f}}\n", meta.GPS.Lat, meta.GPS.Lon)
	}

	b.WriteString("\n=={{int:license-header}}==\n")
	fmt.Fprintf(&b, "{{%s}}\n", meta.License)

	if len(meta.Categories) > 0 {
		b.WriteString("\n")
		for _, cat := range meta.Categories {
			fmt.Fprintf(&b, "[[Category:%s]]\n", cat)
		}
	}
	return b.String()
}
