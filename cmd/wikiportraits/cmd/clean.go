package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flogvit/wikiportraits-uploader-sub003/index"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().Bool("index", false, "Also delete the local entity index")
	cleanCmd.Flags().String("session", "", "Delete the named session and its journal")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Drop cached suggestions, and optionally the index or a session",
	Run:   runClean,
}

func runClean(cmd *cobra.Command, args []string) {
	dropIndex, _ := cmd.Flags().GetBool("index")
	sessionName, _ := cmd.Flags().GetString("session")

	db := openDatabase()
	defer db.Close()

	evicted, err := db.ClearCache()
	if err != nil {
		log.WithError(err).Fatal("Failed to clear suggestion cache")
	}
	log.Infof("Dropped %d cached suggestion entr(ies)", evicted)

	if sessionName != "" {
		if err := db.DeleteSession(sessionName); err != nil {
			log.WithError(err).Fatalf("Failed to delete session %q", sessionName)
		}
		if err := db.ClearJournal(sessionName); err != nil {
			log.WithError(err).Fatalf("Failed to clear journal for %q", sessionName)
		}
		log.Infof("Deleted session %q and its journal", sessionName)
	}

	if dropIndex {
		if err := index.DeleteIndex(globalConfig.BleveIndexPath); err != nil {
			log.WithError(err).Fatal("Failed to delete index")
		}
		log.Infof("Deleted index at %s", globalConfig.BleveIndexPath)
	}
}
