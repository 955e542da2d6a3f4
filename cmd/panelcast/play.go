package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/panelcast/internal/audio"
	"github.com/satindergrewal/panelcast/internal/player"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntP("from", "f", 0, "First frame to play")
	playCmd.Flags().IntP("to", "t", -1, "Last frame to play (-1 for the last frame)")
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a range of frames on the local audio device",
	Example: "  panelcast play -m comic.json\n" +
		"  panelcast play -m comic.json --from 2 --to 4",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := loadManifest()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		idle := make(chan struct{}, 1)
		rt := startRuntime(ctx, raw, func(frame int) {
			log.WithField("frame", frame).Info("Frame changed")
			if frame == player.Idle {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		})

		go func() {
			if err := audio.PlayLocal(ctx, rt.pipeline.Frames()); err != nil {
				log.WithError(err).Error("Audio output failed")
				cancel()
			}
		}()

		from := lo.Must(cmd.Flags().GetInt("from"))
		to := lo.Must(cmd.Flags().GetInt("to"))
		if to < 0 {
			to = len(rt.player.Frames()) - 1
		}
		from, to, err = rt.player.Validate(from, to)
		if err != nil && !isClamp(err) {
			return err
		}
		if err != nil {
			log.WithError(err).Warn("Range adjusted")
		}
		rt.player.Restart(from, to)

		return awaitSession(ctx, idle, rt.player, cfg.FallbackInterval)
	},
}

// awaitSession blocks until the session goes idle or ctx is done. A track
// that failed to load, before or during playback, is reported as the error.
func awaitSession(ctx context.Context, idle <-chan struct{}, p *player.Player, every time.Duration) error {
	check := time.NewTicker(every)
	defer check.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-idle:
			return p.Err()
		case <-check.C:
			if err := p.Err(); err != nil {
				return err
			}
		}
	}
}
