package cmd

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flogvit/wikiportraits-uploader-sub003/index"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/categories"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/dedupe"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/fileproc"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("workflow", "music-event", "Workflow kind (music-event, general)")
	ingestCmd.Flags().String("event-title", "", "Event title (e.g. \"Test Festival\")")
	ingestCmd.Flags().String("event-kind", "festival", "Event kind (festival, concert, event)")
	ingestCmd.Flags().String("event-date", "", "Event date (YYYY-MM-DD)")
	ingestCmd.Flags().String("event-category", "", "Commons category override for the event")
	ingestCmd.Flags().String("event-id", "", "Wikidata id of the event, when it already exists")
	ingestCmd.Flags().String("org", "", "Wikidata id of the primary organization (band, orchestra, ...)")
	ingestCmd.Flags().StringSlice("members", []string{}, "Wikidata ids of selected members, applied to each ingested image")
	ingestCmd.Flags().Bool("allow-duplicates", false, "Queue files even when they collide with already-queued or uploaded images")

	viper.BindPFlag("ingest.workflow", ingestCmd.Flags().Lookup("workflow"))
	viper.BindPFlag("ingest.members", ingestCmd.Flags().Lookup("members"))
	viper.BindPFlag("ingest.allow_duplicates", ingestCmd.Flags().Lookup("allow-duplicates"))
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <session> <file>...",
	Short: "Process image files into a saved upload session",
	Long: `Reads each image file, extracts capture metadata, renders the initial
file-page body and queues the result in the named session. Files whose
content hash (or name and size) collide with an already-known image are
reported and skipped unless --allow-duplicates is given.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) {
	sessionName := args[0]
	paths := args[1:]
	ctx := cmd.Context()

	db := openDatabase()
	defer db.Close()

	form, err := db.LoadSession(sessionName)
	if err != nil {
		log.Infof("Starting new session %q", sessionName)
		form = &models.FormData{}
	}

	applyEventFlags(cmd, form)
	if orgID, _ := cmd.Flags().GetString("org"); orgID != "" {
		resolveOrganization(ctx, form, orgID)
	}

	members := viper.GetStringSlice("ingest.members")
	processor := fileproc.NewProcessor(globalConfig, fileproc.NoopReader{})

	var candidates []*models.ImageRecord
	for _, path := range paths {
		record, err := processor.Process(path)
		if err != nil {
			log.WithError(err).Errorf("Skipping %s", path)
			continue
		}
		record.Metadata.SelectedBandMembers = append([]string(nil), members...)
		applyEventCategories(form, record)
		record.SkipDuplicateCheck = viper.GetBool("ingest.allow_duplicates")
		candidates = append(candidates, record)
	}

	result := dedupe.Partition(candidates, form.AllImages())
	for _, conflict := range result.Duplicates {
		names := make([]string, 0, len(conflict.Existing))
		for _, ex := range conflict.Existing {
			names = append(names, ex.FileName)
		}
		log.Warnf("Duplicate: %s collides with %s; re-run with --allow-duplicates to queue it anyway",
			conflict.Candidate.FileName, strings.Join(names, ", "))
		processor.Release(conflict.Candidate)
	}
	form.QueuedImages = append(form.QueuedImages, result.Valid...)

	if err := db.SaveSession(sessionName, form); err != nil {
		log.WithError(err).Fatal("Failed to save session")
	}
	log.Infof("Session %q: queued %d new image(s), %d duplicate(s) skipped, %d queued in total",
		sessionName, len(result.Valid), len(result.Duplicates), len(form.QueuedImages))
}

// applyEventCategories stamps the event-derived category links onto the
// record and re-renders the page body so the upload carries them. The
// category action of the publish plan creates the page itself; this puts the
// image in it.
func applyEventCategories(form *models.FormData, record *models.ImageRecord) {
	cats := categories.GenerateCategories(form.Event)
	if len(cats) == 0 {
		return
	}
	record.Metadata.Categories = cats
	record.Metadata.Wikitext = fileproc.RenderWikitext(record.Metadata)
}

// applyEventFlags folds the event flags into the session, leaving unset
// flags alone so repeated ingests do not erase earlier answers.
func applyEventFlags(cmd *cobra.Command, form *models.FormData) {
	switch viper.GetString("ingest.workflow") {
	case string(models.WorkflowGeneral):
		form.Workflow = models.WorkflowGeneral
	default:
		form.Workflow = models.WorkflowMusicEvent
	}

	if title, _ := cmd.Flags().GetString("event-title"); title != "" {
		form.Event.Title = title
	}
	if kind, _ := cmd.Flags().GetString("event-kind"); kind != "" {
		form.Event.Kind = models.EventKind(kind)
	}
	if category, _ := cmd.Flags().GetString("event-category"); category != "" {
		form.Event.CommonsCategory = category
	}
	if id, _ := cmd.Flags().GetString("event-id"); id != "" {
		form.Event.WikidataID = id
	}
	if form.Event.Language == "" {
		form.Event.Language = globalConfig.Language
	}
	if date, _ := cmd.Flags().GetString("event-date"); date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			log.WithError(err).Fatalf("Invalid --event-date %q, expected YYYY-MM-DD", date)
		}
		form.Event.Date = parsed
	}
}

// resolveOrganization fetches the organization entity and records it in both
// the session and the local search index.
func resolveOrganization(ctx context.Context, form *models.FormData, orgID string) {
	entity, err := newWikidataClient().GetEntity(ctx, orgID, []string{form.Event.Language, "en"})
	if err != nil {
		log.WithError(err).Fatalf("Failed to fetch organization %s", orgID)
	}
	form.Organization = entity
	log.Infof("Organization: %s (%s)", entity.Label(form.Event.Language), entity.ID)

	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Warn("Could not open local index; skipping entity indexing")
		return
	}
	defer idx.Close()
	if err := index.IndexItem(idx, index.FromEntity(entity, "organization", form.Event.Language)); err != nil {
		log.WithError(err).Warnf("Failed to index entity %s", entity.ID)
	}
}
