package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/suggest"
)

func init() {
	rootCmd.AddCommand(suggestCmd)
	suggestCmd.Flags().IntP("limit", "l", 10, "Maximum number of suggestions to show")
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <session>",
	Short: "Suggest related entities for a session's event",
	Long: `Scores Wikidata entities by how closely they relate to the session's
event: same period, nearby location, members of the selected
organization, shared genre. Results are cached locally.`,
	Args: cobra.ExactArgs(1),
	Run:  runSuggest,
}

func runSuggest(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	db := openDatabase()
	defer db.Close()
	form := loadSession(db, args[0])

	ttl := time.Duration(globalConfig.SuggestionTTLMinutes) * time.Minute
	engine := suggest.NewEngine(newWikidataClient(), db, ttl)

	suggestions, err := engine.Suggest(cmd.Context(), form.Event, form.Organization)
	if err != nil {
		log.WithError(err).Fatal("No suggestions available")
	}

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	fmt.Printf("Suggestions for %q:\n", form.Event.Title)
	for _, s := range suggestions {
		fmt.Printf("  %-12s %-30s %.2f  (%s)\n", s.EntityID, s.Label, s.Score, s.Reason)
	}
}
