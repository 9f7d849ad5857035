// Package capture runs the loopback capture pipeline: frames pulled from a
// virtual device are normalized to mono 16 kHz, chunked for the frontend,
// and voiced windows are handed to a speech recognizer.
package capture

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.enteract.dev/enteract/audiodev"
	"go.enteract.dev/enteract/internal/types"
)

// Pipeline defaults. All audio is normalized to mono at PipelineRate before
// windowing, leveling, and recognition.
const (
	PipelineRate              = 16000
	DefaultEmitInterval       = 100 * time.Millisecond
	DefaultWindowSeconds      = 4.0
	DefaultTranscribeInterval = 800 * time.Millisecond
	DefaultMinVoicedSeconds   = 1.5
	DefaultOverlapSeconds     = 1.0
	// DefaultVoiceThreshold is the RMS gate below which a window is treated
	// as silence. Matches an int16 RMS of 100.
	DefaultVoiceThreshold = 0.00305
)

// Transcriber converts mono pipeline-rate samples to text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// ProcessorConfig parameterizes a Processor. Zero values take the pipeline
// defaults above.
type ProcessorConfig struct {
	DeviceUID    string
	SourceFormat audiodev.StreamFormat

	PipelineRate       int
	EmitInterval       time.Duration
	WindowSeconds      float64
	TranscribeInterval time.Duration
	MinVoicedSeconds   float64
	VoiceThreshold     float64
	OverlapSeconds     float64

	Transcriber  Transcriber
	OnChunk      func(types.AudioChunk)
	OnTranscript func(types.TranscriptionResult)
}

func (c *ProcessorConfig) applyDefaults() {
	if c.PipelineRate == 0 {
		c.PipelineRate = PipelineRate
	}
	if c.EmitInterval == 0 {
		c.EmitInterval = DefaultEmitInterval
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = DefaultWindowSeconds
	}
	if c.TranscribeInterval == 0 {
		c.TranscribeInterval = DefaultTranscribeInterval
	}
	if c.MinVoicedSeconds == 0 {
		c.MinVoicedSeconds = DefaultMinVoicedSeconds
	}
	if c.VoiceThreshold == 0 {
		c.VoiceThreshold = DefaultVoiceThreshold
	}
	if c.OverlapSeconds == 0 {
		c.OverlapSeconds = DefaultOverlapSeconds
	}
}

// Processor owns the rolling audio window. It ingests native frames,
// normalizes them to the pipeline format, emits level-annotated chunks on
// the emit cadence, and dispatches voiced windows to the transcriber on the
// transcribe cadence. All clocks are sample-driven, so cadence follows the
// audio itself rather than the wall clock.
type Processor struct {
	cfg ProcessorConfig

	// derived sample counts
	emitSamples       int
	windowSamples     int
	transcribeSamples int
	minVoicedSamples  int
	overlapSamples    int

	// owned by the run goroutine
	window                 []float32
	windowStartSample      uint64
	samplesSinceEmit       int
	samplesSinceTranscribe int
	monoScratch            []float32

	sessionStart time.Time
	now          func() time.Time

	inflight       atomic.Bool
	totalSamples   atomic.Uint64
	displaced      atomic.Uint64
	stopped        atomic.Bool
	lastChunk      atomic.Int64
	lastTranscript atomic.Int64
	wg             sync.WaitGroup
}

// NewProcessor creates a processor for one capture session.
func NewProcessor(cfg ProcessorConfig) *Processor {
	cfg.applyDefaults()
	p := &Processor{
		cfg:               cfg,
		emitSamples:       int(float64(cfg.PipelineRate) * cfg.EmitInterval.Seconds()),
		windowSamples:     int(float64(cfg.PipelineRate) * cfg.WindowSeconds),
		transcribeSamples: int(float64(cfg.PipelineRate) * cfg.TranscribeInterval.Seconds()),
		minVoicedSamples:  int(float64(cfg.PipelineRate) * cfg.MinVoicedSeconds),
		overlapSamples:    int(float64(cfg.PipelineRate) * cfg.OverlapSeconds),
		now:               time.Now,
	}
	p.window = make([]float32, 0, p.windowSamples*2)
	p.sessionStart = p.now()
	return p
}

// Run consumes frames from the loop until ctx is canceled, then drains
// whatever the callback already queued.
func (p *Processor) Run(ctx context.Context, l *Loop) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case buf := <-l.Frames():
					p.Ingest(ctx, buf)
					l.Recycle(buf)
				default:
					return
				}
			}
		case buf := <-l.Frames():
			p.Ingest(ctx, buf)
			l.Recycle(buf)
		}
	}
}

// Ingest normalizes one native buffer into the rolling window and advances
// the emit and transcribe clocks. Must be called from a single goroutine.
func (p *Processor) Ingest(ctx context.Context, samples []float32) {
	if len(samples) == 0 {
		return
	}

	p.monoScratch = downmixMono(samples, p.cfg.SourceFormat.Channels, p.monoScratch[:0])
	before := len(p.window)
	p.window = resampleLinear(p.monoScratch, p.cfg.SourceFormat.SampleRate, p.cfg.PipelineRate, p.window)
	added := len(p.window) - before

	p.totalSamples.Add(uint64(added))
	p.samplesSinceEmit += added
	p.samplesSinceTranscribe += added

	// Each pending emit covers its own region of the window, oldest first,
	// so a large buffer crossing several deadlines never repeats audio.
	for p.samplesSinceEmit >= p.emitSamples {
		start := len(p.window) - p.samplesSinceEmit
		p.emitChunk(p.window[start : start+p.emitSamples])
		p.samplesSinceEmit -= p.emitSamples
	}
	if p.samplesSinceTranscribe >= p.transcribeSamples {
		p.samplesSinceTranscribe = 0
		p.maybeTranscribe(ctx)
	}

	// Trim lazily at twice the window so steady state does not copy on
	// every buffer.
	if len(p.window) > p.windowSamples*2 {
		excess := len(p.window) - p.windowSamples
		p.windowStartSample += uint64(excess)
		p.window = append(p.window[:0], p.window[excess:]...)
	}
}

func (p *Processor) emitChunk(chunk []float32) {
	if p.cfg.OnChunk == nil {
		return
	}
	now := p.now()

	p.lastChunk.Store(now.UnixMilli())
	p.cfg.OnChunk(types.AudioChunk{
		DeviceID:     p.cfg.DeviceUID,
		AudioData:    base64.StdEncoding.EncodeToString(pcm16Bytes(chunk)),
		SampleRate:   p.cfg.PipelineRate,
		Channels:     1,
		Level:        levelDB(rms(chunk)),
		Timestamp:    now.UnixMilli(),
		Duration:     int64(p.totalSamples.Load()) / int64(p.cfg.PipelineRate),
		TotalSamples: p.totalSamples.Load(),
	})
}

func (p *Processor) maybeTranscribe(ctx context.Context) {
	if p.cfg.Transcriber == nil || p.cfg.OnTranscript == nil {
		return
	}
	if len(p.window) < p.minVoicedSamples {
		return
	}
	if rms(p.window) < p.cfg.VoiceThreshold {
		return
	}
	if !p.inflight.CompareAndSwap(false, true) {
		// The previous window is still being recognized; this one is
		// displaced rather than queued so latency stays bounded.
		p.displaced.Add(1)
		return
	}

	samples := make([]float32, len(p.window))
	copy(samples, p.window)
	startSample := p.windowStartSample
	endSample := p.windowStartSample + uint64(len(p.window))

	// Keep the trailing overlap so speech spanning the dispatch boundary
	// is not cut in half.
	if len(p.window) > p.overlapSamples {
		trimmed := len(p.window) - p.overlapSamples
		p.windowStartSample += uint64(trimmed)
		p.window = append(p.window[:0], p.window[trimmed:]...)
	}

	p.wg.Add(1)
	go p.transcribe(ctx, samples, startSample, endSample)
}

func (p *Processor) transcribe(ctx context.Context, samples []float32, startSample, endSample uint64) {
	defer p.wg.Done()
	defer p.inflight.Store(false)

	text, err := p.cfg.Transcriber.Transcribe(ctx, samples)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("transcription failed", "samples", len(samples), "error", err)
		}
		return
	}

	cleaned := cleanTranscript(text)
	confidence := estimateConfidence(cleaned)
	if !transcriptAcceptable(cleaned, confidence) {
		slog.Debug("transcript rejected by quality gate", "text", cleaned, "confidence", confidence)
		return
	}
	if p.stopped.Load() {
		return
	}

	now := p.now()
	p.lastTranscript.Store(now.UnixMilli())
	p.cfg.OnTranscript(types.TranscriptionResult{
		Text:       cleaned,
		Confidence: confidence,
		StartTime:  float64(startSample) / float64(p.cfg.PipelineRate),
		EndTime:    float64(endSample) / float64(p.cfg.PipelineRate),
		Timestamp:  now.UnixMilli(),
	})
}

// Stop suppresses any transcription result still in flight.
func (p *Processor) Stop() {
	p.stopped.Store(true)
}

// WaitInflight blocks until in-flight transcriptions finish or the timeout
// elapses. Returns false on timeout.
func (p *Processor) WaitInflight(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Displaced returns how many voiced windows were skipped because a
// transcription was already in flight.
func (p *Processor) Displaced() uint64 { return p.displaced.Load() }

// TotalSamples returns the pipeline samples ingested so far.
func (p *Processor) TotalSamples() uint64 { return p.totalSamples.Load() }

// LastChunkMillis returns the wall-clock time of the last emitted chunk in
// ms since epoch, zero if none.
func (p *Processor) LastChunkMillis() int64 { return p.lastChunk.Load() }

// LastTranscriptMillis returns the wall-clock time of the last accepted
// transcript in ms since epoch, zero if none.
func (p *Processor) LastTranscriptMillis() int64 { return p.lastTranscript.Load() }
