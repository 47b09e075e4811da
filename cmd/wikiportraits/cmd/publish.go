package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/database"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/publish"
)

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	publishCmd.Flags().StringSlice("category", []string{}, "Additional manual categories to create")

	viper.BindPFlag("publish.yes", publishCmd.Flags().Lookup("yes"))
}

var publishCmd = &cobra.Command{
	Use:   "publish <session>",
	Short: "Execute the pending action plan for a session",
	Long: `Computes the action plan for the named session and executes it:
creates missing Commons categories and Wikidata entities, uploads
queued images, rewrites changed file pages and publishes structured
data. Outcomes are journaled; a failed action does not stop the run.`,
	Args: cobra.ExactArgs(1),
	Run:  runPublish,
}

func runPublish(cmd *cobra.Command, args []string) {
	sessionName := args[0]
	ctx := cmd.Context()

	db := openDatabase()
	defer db.Close()
	form := loadSession(db, sessionName)

	wikidataClient := newWikidataClient()
	commonsClient := newCommonsClient()
	builder := publish.ForWorkflow(form.Workflow, wikidataClient, commonsClient)
	agg := publish.NewAggregator(builder, nil)

	if _, err := agg.Recompute(ctx, form); err != nil {
		log.WithError(err).Fatal("Failed to compute the action plan")
	}
	manual, _ := cmd.Flags().GetStringSlice("category")
	for _, name := range manual {
		agg.AddManualCategory(name)
	}

	counts := agg.Counts()
	if counts.Pending == 0 {
		log.Info("Nothing to publish; every action is already satisfied")
		return
	}

	printPlan(agg.Plan())
	if !confirmPublish(counts.Pending) {
		log.Info("Publish aborted")
		return
	}

	writer := uilive.New()
	writer.Start()
	agg.OnCountsChanged(func(c models.Counts) {
		fmt.Fprintf(writer, "Publishing: %d/%d done, %d failed\n",
			c.Completed, c.Total, c.Errors)
	})

	executor := publish.NewExecutor(agg, wikidataClient, commonsClient)
	executor.OnResult = func(r publish.Result) {
		entry := database.JournalEntry{
			Session: sessionName,
			Kind:    r.Kind,
			Key:     r.Key,
			Status:  r.Status,
			Error:   r.Error,
		}
		if err := db.AppendJournal(entry); err != nil {
			log.WithError(err).Warn("Failed to journal action outcome")
		}
	}

	failures, err := executor.Run(ctx, form)
	writer.Stop()
	if err != nil {
		log.WithError(err).Fatal("Publish interrupted")
	}

	// Page ids assigned during the run move queued images to the existing
	// set for the next pass.
	var stillQueued []*models.ImageRecord
	for _, img := range form.QueuedImages {
		if img.IsUploaded() {
			form.ExistingImages = append(form.ExistingImages, img)
		} else {
			stillQueued = append(stillQueued, img)
		}
	}
	form.QueuedImages = stillQueued
	if err := db.SaveSession(sessionName, form); err != nil {
		log.WithError(err).Error("Failed to save session after publish")
	}

	final := agg.Counts()
	if failures > 0 {
		log.Warnf("Publish finished with %d failed action(s); %d completed", failures, final.Completed)
		os.Exit(1)
	}
	log.Infof("Publish complete: %d action(s) executed", final.Completed)
}

// confirmPublish prompts unless --yes or the config suppresses it.
func confirmPublish(pending int) bool {
	if viper.GetBool("publish.yes") || globalConfig.SkipConfirmation {
		return true
	}
	fmt.Printf("\nExecute %d pending action(s)? [y/N] ", pending)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
