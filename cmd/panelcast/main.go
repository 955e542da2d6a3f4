package main

import (
	"fmt"
	"os"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satindergrewal/panelcast/internal/config"
	"github.com/satindergrewal/panelcast/internal/frames"
	"github.com/satindergrewal/panelcast/internal/logging"
)

// cfg is loaded once flags are parsed, before any command runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "panelcast",
	Short: "Narration playback synchronized to comic panels",
	Long: "panelcast plays ranges of comic panels (frames) mapped onto narration audio\n" +
		"and reports the active panel as playback progresses.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
			log.WithError(err).Warn("Unknown log level, using info")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("manifest", "m", "", "JSON frame manifest")
	lo.Must0(viper.BindPFlag(config.KeyManifest, rootCmd.PersistentFlags().Lookup("manifest")))

	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	lo.Must0(viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level")))
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return lo.Map(log.AllLevels, func(l log.Level, _ int) string { return l.String() }), cobra.ShellCompDirectiveDefault
	}))

	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
	lo.Must0(viper.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format")))

	rootCmd.PersistentFlags().String("ffmpeg", "", "ffmpeg binary for decoding and MP3 streaming")
	lo.Must0(viper.BindPFlag(config.KeyFFmpeg, rootCmd.PersistentFlags().Lookup("ffmpeg")))
}

func main() {
	if err := config.Setup(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cc.Init(&cc.Config{
		RootCmd:       rootCmd,
		Headings:      cc.HiCyan + cc.Bold + cc.Underline,
		Commands:      cc.HiYellow + cc.Bold,
		Example:       cc.Italic,
		ExecName:      cc.Bold,
		Flags:         cc.Bold,
		FlagsDataType: cc.Italic + cc.HiBlue,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadManifest reads the configured manifest from the OS filesystem.
func loadManifest() ([]frames.Raw, error) {
	if cfg.Manifest == "" {
		return nil, fmt.Errorf("no manifest: pass --manifest or set PANELCAST_MANIFEST")
	}
	return frames.LoadManifest(afero.NewOsFs(), cfg.Manifest)
}
