package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "plank",
	Short: "Plank - realtime collaborative kanban server",
	Long: `Plank serves shared kanban boards. Clients connect over a WebSocket,
join a board's room and send intents; every member of the room receives the
resulting events in the same order.

Configuration is read from PLANK_* environment variables.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
	PersistentPreRun: func(*cobra.Command, []string) {
		setupLogging()
	},
}

// Execute runs the root command. Errors are returned to main for logging.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// setupLogging configures the global zerolog logger from PLANK_LOG_LEVEL and
// PLANK_LOG_FORMAT.
func setupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("PLANK_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("PLANK_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
