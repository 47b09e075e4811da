package cmd

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/commons"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/database"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/wikidata"
)

// newHttpClient builds the shared HTTP client from the global transport and
// the configured timeout.
func newHttpClient() *http.Client {
	return &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second,
	}
}

// newWikidataClient wires a Wikidata client against the global config.
func newWikidataClient() *wikidata.Client {
	return wikidata.NewClient(globalConfig, newHttpClient())
}

// newCommonsClient wires a Commons client against the global config.
func newCommonsClient() *commons.Client {
	return commons.NewClient(globalConfig, newHttpClient())
}

// openDatabase opens the local state store; commands that need it exit on
// failure rather than limping on without sessions.
func openDatabase() *database.DB {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open database at %s", globalConfig.DatabasePath)
	}
	return db
}

// loadSession fetches a saved session, exiting with a helpful message when
// it does not exist.
func loadSession(db *database.DB, name string) *models.FormData {
	form, err := db.LoadSession(name)
	if err != nil {
		log.WithError(err).Fatalf("Session %q not found; run 'wikiportraits ingest %s <files>' first", name, name)
	}
	return form
}
