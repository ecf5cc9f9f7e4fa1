package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zjrosen/displayboard/internal/config"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
	// cfgUsed is the config file that was merged, empty for defaults only.
	cfgUsed string
	// cfgErr is reported by commands that need a valid config.
	cfgErr error
)

var rootCmd = &cobra.Command{
	Use:   "displayboard",
	Short: "Controller for a haunted diorama exhibit",
	Long: `displayboard runs an exhibit: layered ambient sound, a rat horde
scurrying across speakers, a servo-driven bell, flickering LEDs, a fog mister
and a looping fullscreen video, each on its own randomized schedule.

Running without a subcommand is the same as "displayboard run".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runExhibit,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./displayboard.yaml, ~/.config/displayboard/config.yaml, /opt/displayboard/config.yaml)")
	addRunFlags(rootCmd)
}

func initConfig() {
	cfg, cfgUsed, cfgErr = config.Load(cfgFile)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
