package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satindergrewal/panelcast/internal/config"
	"github.com/satindergrewal/panelcast/internal/stream"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "HTTP port")
	lo.Must0(viper.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port")))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the player over HTTP with MP3, WebRTC and frame-change event streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := loadManifest()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		// Frame changes fan out to SSE clients and WebRTC data channels.
		events := stream.NewEventBroadcaster()
		rt := startRuntime(ctx, raw, func(frame int) {
			log.WithField("frame", frame).Debug("Frame changed")
			events.Publish(frame)
		})

		// PCM fans out to MP3 and WebRTC listeners.
		pcm := stream.NewPCMBroadcaster()
		go pcm.Run(ctx, rt.pipeline.Frames())

		webrtcHandler := stream.NewWebRTCHandler(pcm, events, cfg.OpusBitrate)

		mux := http.NewServeMux()
		a := &api{
			player:     rt.player,
			nowPlaying: rt.pipeline.Status,
			listeners: func() int {
				return pcm.ListenerCount() + webrtcHandler.PeerCount()
			},
		}
		a.register(mux)
		mux.Handle("/stream", stream.NewHTTPHandler(pcm, cfg.FFmpeg, cfg.MP3Bitrate))
		mux.Handle("/offer", webrtcHandler)
		mux.Handle("/events", stream.NewEventsHandler(events, func() int {
			return rt.player.Status().Frame
		}))

		addr := fmt.Sprintf(":%d", cfg.Port)
		server := &http.Server{Addr: addr, Handler: mux}

		go func() {
			<-ctx.Done()
			log.Info("Shutting down...")
			server.Close()
		}()

		log.WithFields(log.Fields{
			"addr":   addr,
			"frames": len(rt.player.Frames()),
			"tracks": len(rt.player.Tracks()),
		}).Info("panelcast live")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	},
}
