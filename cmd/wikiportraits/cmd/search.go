package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flogvit/wikiportraits-uploader-sub003/index"
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Bool("remote", false, "Also search Wikidata and index the results locally")
	searchCmd.Flags().String("kind", "", "Kind recorded for remotely found entities (band, performer, festival, ...)")
	searchCmd.Flags().IntP("limit", "l", 10, "Maximum number of remote results")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the local entity index, optionally falling back to Wikidata",
	Long: `Searches the local full-text index of previously seen entities. With
--remote the query also runs against Wikidata; remote hits are added
to the local index so later searches answer offline.`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) {
	query := args[0]
	remote, _ := cmd.Flags().GetBool("remote")
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")

	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open index at %s", globalConfig.BleveIndexPath)
	}
	defer idx.Close()

	results, err := index.SearchIndex(idx, query)
	if err != nil {
		log.WithError(err).Fatal("Local search failed")
	}

	if results.Total > 0 {
		fmt.Printf("Local matches (%d):\n", results.Total)
		for _, hit := range results.Hits {
			label, _ := hit.Fields["label"].(string)
			description, _ := hit.Fields["description"].(string)
			fmt.Printf("  %-12s %s", hit.ID, label)
			if description != "" {
				fmt.Printf(" - %s", description)
			}
			fmt.Println()
		}
	} else {
		fmt.Println("No local matches.")
	}

	if !remote && results.Total > 0 {
		return
	}

	entities, err := newWikidataClient().SearchEntities(cmd.Context(), query, limit)
	if err != nil {
		log.WithError(err).Fatal("Remote search failed")
	}
	if len(entities) == 0 {
		fmt.Println("No remote matches.")
		return
	}

	fmt.Printf("Remote matches (%d):\n", len(entities))
	for _, entity := range entities {
		fmt.Printf("  %-12s %s", entity.ID, entity.Label(globalConfig.Language))
		if d := entity.Description(globalConfig.Language); d != "" {
			fmt.Printf(" - %s", d)
		}
		fmt.Println()

		if err := index.IndexItem(idx, index.FromEntity(entity, kind, globalConfig.Language)); err != nil {
			log.WithError(err).Warnf("Failed to index entity %s", entity.ID)
		}
	}
}
