package cmd

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/publish"
)

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringSlice("category", []string{}, "Additional manual categories to include")
}

var planCmd = &cobra.Command{
	Use:   "plan <session>",
	Short: "Compute and display the publish action plan without executing it",
	Args:  cobra.ExactArgs(1),
	Run:   runPlan,
}

func runPlan(cmd *cobra.Command, args []string) {
	db := openDatabase()
	defer db.Close()
	form := loadSession(db, args[0])

	builder := publish.ForWorkflow(form.Workflow, newWikidataClient(), newCommonsClient())
	agg := publish.NewAggregator(builder, nil)

	if _, err := agg.Recompute(cmd.Context(), form); err != nil {
		log.WithError(err).Fatal("Failed to compute the action plan")
	}

	manual, _ := cmd.Flags().GetStringSlice("category")
	for _, name := range manual {
		agg.AddManualCategory(name)
	}

	printPlan(agg.Plan())

	counts := agg.Counts()
	fmt.Printf("\n%d action(s): %d pending, %d already satisfied\n",
		counts.Total, counts.Pending, counts.Total-counts.Pending)
}

func printPlan(plan models.Plan) {
	if len(plan.Categories) > 0 {
		fmt.Println("Categories:")
		for _, a := range plan.Categories {
			verb := "confirm"
			if a.ShouldCreate {
				verb = "create"
			}
			fmt.Printf("  [%s] %s %q\n", a.Status, verb, a.Name)
		}
	}
	if len(plan.Entities) > 0 {
		fmt.Println("Wikidata:")
		for _, a := range plan.Entities {
			if a.Op == models.EntityCreate {
				fmt.Printf("  [%s] create %q\n", a.Status, a.Label)
				continue
			}
			props := make([]string, 0, len(a.Changes))
			for _, ch := range a.Changes {
				props = append(props, ch.Property)
			}
			fmt.Printf("  [%s] update %s (%s)\n", a.Status, a.EntityID, strings.Join(props, ", "))
		}
	}
	if len(plan.Images) > 0 {
		fmt.Println("Images:")
		for _, a := range plan.Images {
			fmt.Printf("  [%s] %s %s\n", a.Status, a.Op, a.FileName)
		}
	}
	if len(plan.StructuredData) > 0 {
		fmt.Println("Structured data:")
		for _, a := range plan.StructuredData {
			var parts []string
			if a.DepictsChanged {
				parts = append(parts, fmt.Sprintf("depicts=%s", strings.Join(a.Depicts, "+")))
			}
			if a.CaptionsChanged {
				parts = append(parts, "captions")
			}
			if a.DateChanged {
				parts = append(parts, "date="+a.CaptureDate)
			}
			if a.GPSChanged {
				parts = append(parts, "coordinates")
			}
			fmt.Printf("  [%s] %s: %s\n", a.Status, a.ImageID, strings.Join(parts, ", "))
		}
	}
}
