package audio

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/satindergrewal/panelcast/internal/engine"
)

// Options configures a Pipeline.
type Options struct {
	// Fs serves local track paths. Nil means the OS filesystem.
	Fs afero.Fs
	// HTTPClient fetches http(s) tracks. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// LoadTimeout bounds fetching and decoding one track.
	LoadTimeout time.Duration
	// Declick is the crossfade applied whenever the output jumps: on seek,
	// on switching tracks, and on start and stop. Zero disables it.
	Declick time.Duration
	// FFmpeg is the ffmpeg binary for formats without a native decoder.
	// Empty disables those formats.
	FFmpeg string
}

// fade is an in-progress crossfade from outgoing audio to whatever the
// active sound renders.
type fade struct {
	samples []int16 // outgoing audio, nil for silence
	pos     int
	done    int
	total   int
}

// Pipeline loads sounds and renders the active one as PCM frames at
// real-time rate. It implements engine.Engine.
type Pipeline struct {
	opts    Options
	loader  *Loader
	frameCh chan []int16

	mu         sync.Mutex
	started    bool
	readyFns   []func()
	sounds     map[string]*Sound
	active     *Sound
	fade       *fade
	fadeFrames int
}

// NewPipeline creates an audio pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	return &Pipeline{
		opts:       opts,
		loader:     &Loader{Fs: opts.Fs, Client: opts.HTTPClient},
		frameCh:    make(chan []int16, 100),
		sounds:     make(map[string]*Sound),
		fadeFrames: int(opts.Declick / FrameDuration),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// OnReady calls fn once Run has started.
func (p *Pipeline) OnReady(fn func()) {
	p.mu.Lock()
	if !p.started {
		p.readyFns = append(p.readyFns, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

// CreateSound returns the sound registered under id, creating it and
// starting its load in the background if needed.
func (p *Pipeline) CreateSound(id, url string) engine.Sound {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sounds[id]; ok {
		return s
	}
	s := &Sound{p: p, id: id, url: url, state: engine.Loading}
	p.sounds[id] = s
	go p.load(s)
	return s
}

// StopAll stops the active sound.
func (p *Pipeline) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.active; s != nil {
		p.startFade()
		s.playing = false
		p.active = nil
	}
}

// Status returns the active sound id with its position and duration.
func (p *Pipeline) Status() (id string, position, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return "", 0, 0
	}
	return p.active.id, samplesToDuration(p.active.pos), samplesToDuration(p.active.length())
}

// Run renders frames until ctx is cancelled. Dropped frames do not slow the
// clock: a consumer that falls behind loses audio, not sync.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	p.mu.Lock()
	p.started = true
	fns := p.readyFns
	p.readyFns = nil
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := p.render()
		select {
		case p.frameCh <- frame:
		default:
		}
	}
}

func (p *Pipeline) load(s *Sound) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.LoadTimeout)
	defer cancel()

	logger := log.WithFields(log.Fields{"track": s.id, "url": s.url})

	samples, err := p.fetch(ctx, s.url)

	p.mu.Lock()
	if err != nil {
		s.state = engine.Failed
	} else {
		s.samples = samples
		s.state = engine.Ready
	}
	p.mu.Unlock()

	if err != nil {
		logger.WithError(err).Error("Load failed")
		return
	}
	logger.WithField("duration", samplesToDuration(len(samples)/Channels)).Info("Track loaded")
}

func (p *Pipeline) fetch(ctx context.Context, url string) ([]int16, error) {
	r, name, err := p.loader.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Decode(ctx, p.opts.FFmpeg, name, r)
}

func (p *Pipeline) play(s *Sound) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.state != engine.Ready {
		log.WithFields(log.Fields{"track": s.id, "state": s.state}).Warn("Play before load finished")
		return
	}
	if p.active == s && s.playing {
		return
	}

	p.startFade()
	if p.active != nil {
		p.active.playing = false
	}
	if s.pos >= s.length() {
		s.pos = 0
	}
	s.playing = true
	p.active = s
}

func (p *Pipeline) seek(s *Sound, pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == s && s.playing {
		p.startFade()
	}
	s.pos = min(max(durationToSamples(pos), 0), s.length())
}

// startFade begins a crossfade away from the current output unless one is
// already running. Must be called with mu held.
func (p *Pipeline) startFade() {
	if p.fadeFrames == 0 || p.fade != nil {
		return
	}
	f := &fade{total: p.fadeFrames}
	if s := p.active; s != nil && s.playing {
		f.samples = s.samples
		f.pos = s.pos
	}
	p.fade = f
}

// render produces the next output frame and advances the active sound.
func (p *Pipeline) render() []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()

	in := make([]int16, FrameSamples)
	if s := p.active; s != nil && s.playing {
		in = s.frame(s.pos)
		s.pos += FrameSize
		if s.pos >= s.length() {
			s.pos = s.length()
			s.playing = false
			p.active = nil
			log.WithField("track", s.id).Debug("Reached end of track")
		}
	}

	f := p.fade
	if f == nil {
		return in
	}

	var out []int16
	if f.samples != nil {
		out = frameAt(f.samples, f.pos)
		f.pos += FrameSize
	}
	from := float64(f.done) / float64(f.total)
	to := float64(f.done+1) / float64(f.total)
	f.done++
	if f.done >= f.total {
		p.fade = nil
	}
	return CrossfadeFrames(out, in, from, to)
}

var _ engine.Engine = (*Pipeline)(nil)
