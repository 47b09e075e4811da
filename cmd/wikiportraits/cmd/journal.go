package cmd

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(journalCmd)
}

var journalCmd = &cobra.Command{
	Use:   "journal <session>",
	Short: "Show the recorded publish outcomes for a session",
	Args:  cobra.ExactArgs(1),
	Run:   runJournal,
}

func runJournal(cmd *cobra.Command, args []string) {
	sessionName := args[0]

	db := openDatabase()
	defer db.Close()

	entries, err := db.Journal(sessionName)
	if err != nil {
		log.WithError(err).Fatal("Failed to read journal")
	}
	if len(entries) == 0 {
		fmt.Printf("No journal entries for session %q.\n", sessionName)
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	for _, entry := range entries {
		line := fmt.Sprintf("%s  %-15s %-9s %s",
			entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Kind, entry.Status, entry.Key)
		if entry.Error != "" {
			line += "  (" + entry.Error + ")"
		}
		fmt.Println(line)
	}
}
