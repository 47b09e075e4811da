package cmd

import (
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/api"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/config"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// logLevel and logFormat configure logrus before any command runs
var logLevel string
var logFormat string

// dbPathFlag holds the value of the --db-path flag
var dbPathFlag string

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

var rootCmd = &cobra.Command{
	Use:   "wikiportraits",
	Short: "Bulk-upload event photos to Wikimedia Commons",
	Long: `WikiPortraits uploads event photography to Wikimedia Commons with
metadata cross-referenced against Wikidata: categories, entities,
file pages and structured data are reconciled from a saved session.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Local database path (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")

	cobra.OnInitialize(initLogging)
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// loadGlobalConfig loads the configuration, applies flag overrides and sets
// up the global HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Not fatal: commands check the fields they need and fail there.
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
	}
	if cmd.Flags().Changed("db-path") && dbPathFlag != "" {
		globalConfig.DatabasePath = dbPathFlag
	}
	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ApiClientTimeoutSec)
		}
	}
	if globalConfig.ApiClientTimeoutSec <= 0 {
		globalConfig.ApiClientTimeoutSec = 60
	}

	globalHttpTransport = http.DefaultTransport
	if globalConfig.LogApiRequests {
		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, "api.log")
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			log.Info("API logging to file: api.log")
			globalHttpTransport = loggingTransport
		}
	}

	return nil
}
