package main

import (
	"context"

	"github.com/satindergrewal/panelcast/internal/audio"
	"github.com/satindergrewal/panelcast/internal/frames"
	"github.com/satindergrewal/panelcast/internal/loop"
	"github.com/satindergrewal/panelcast/internal/player"
)

// runtime is the loop, sound engine and player shared by serve and play.
type runtime struct {
	loop     *loop.RealLoop
	pipeline *audio.Pipeline
	player   *player.Player
}

// startRuntime builds the player for raw and starts the loop and the audio
// pipeline. Both stop when ctx is cancelled.
func startRuntime(ctx context.Context, raw []frames.Raw, onFrameChange func(int)) *runtime {
	lp := loop.New()
	pipeline := audio.NewPipeline(audio.Options{
		LoadTimeout: cfg.LoadTimeout,
		Declick:     cfg.Declick,
		FFmpeg:      cfg.FFmpeg,
	})
	p := player.New(lp, pipeline, raw, player.Options{
		FallbackInterval: cfg.FallbackInterval,
		LoadPollInterval: cfg.LoadPollInterval,
		PlayRetryDelay:   cfg.PlayRetryDelay,
		OnFrameChange:    onFrameChange,
	})

	go lp.Run(ctx)
	go pipeline.Run(ctx)

	return &runtime{loop: lp, pipeline: pipeline, player: p}
}
