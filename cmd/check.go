package cmd

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/zjrosen/displayboard/internal/audio"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/hardware/periph"
	"github.com/zjrosen/displayboard/internal/video"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the player, display, audio backends and sound library",
	Long: `Report whether this machine can run the exhibit: the video player on
PATH, a reachable display, the compiled-in audio backends, the GPIO/SPI host
drivers and how many sounds each category holds.

Exits non-zero when the video player is required but missing.`,
	RunE: func(c *cobra.Command, _ []string) error {
		if cfgErr != nil {
			return cfgErr
		}
		return runCheck(c.Context(), c.OutOrStdout(), cfg, cfgUsed)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(ctx context.Context, w io.Writer, c config.Config, used string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if used == "" {
		used = "(defaults)"
	}
	fmt.Fprintf(w, "config:   %s\n", used)

	var playerErr error
	if c.Video.Disabled || !c.Features.Video {
		fmt.Fprintln(w, "video:    disabled")
	} else {
		path, err := video.CheckPlayer(c.Video.Player)
		if err != nil {
			playerErr = err
			fmt.Fprintf(w, "video:    %s missing, install with: %s\n", c.Video.Player, video.InstallHint(runtime.GOOS, c.Video.Player))
		} else {
			fmt.Fprintf(w, "video:    %s\n", path)
		}
		if video.Headless() {
			fmt.Fprintln(w, "display:  none (video will be skipped)")
		} else {
			fmt.Fprintln(w, "display:  available")
		}
	}

	fmt.Fprintf(w, "audio:    %s (available: %v)\n", c.Audio.Backend, audio.Backends())

	if err := periph.Init(); err != nil {
		fmt.Fprintf(w, "hardware: unavailable (%v)\n", err)
	} else {
		fmt.Fprintln(w, "hardware: host drivers loaded")
	}

	lib, err := audio.ScanLibrary(ctx, c.SoundsDir, c.SoundCategories())
	if err != nil {
		fmt.Fprintf(w, "sounds:   %s unreadable: %v\n", c.SoundsDir, err)
	} else {
		fmt.Fprintf(w, "sounds:   %s (%d files)\n", c.SoundsDir, lib.Total())
		for _, cat := range c.SoundCategories() {
			fmt.Fprintf(w, "  %-10s %d\n", cat, len(lib.Files(cat)))
		}
	}
	return playerErr
}
