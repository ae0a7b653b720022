// Package capture implements the live microphone engine on PortAudio.
// Samples accumulate in an internal buffer and are handed to the listener
// only on Flush, which returns after delivery — callers never need to guess
// when flushed audio has arrived.
package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/openscribe/meetingd/internal/errors"
)

// Listener receives pushed audio. OnLevel fires continuously while
// recording; OnSamples fires once per Flush with everything buffered since
// the previous one.
type Listener interface {
	OnSamples(samples []float32)
	OnLevel(level float32)
}

// Engine captures mono audio from the default input device.
type Engine struct {
	sampleRate   int
	framesPerBuf int

	mu       sync.Mutex
	listener Listener
	pending  []float32
	stream   *portaudio.Stream
	cancel   context.CancelFunc
	running  bool
}

// NewEngine initializes PortAudio and creates a capture engine.
func NewEngine(sampleRate int) (*Engine, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCapture, "initialize portaudio")
	}
	return &Engine{
		sampleRate:   sampleRate,
		framesPerBuf: 1024,
	}, nil
}

// SetListener registers the listener. Must be called before StartRecording.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// StartRecording opens the default input device and begins buffering.
func (e *Engine) StartRecording(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New(errors.CodeCapture, "already recording")
	}
	if e.listener == nil {
		e.mu.Unlock()
		return errors.New(errors.CodeCapture, "no listener registered")
	}
	e.running = true
	e.mu.Unlock()

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		e.setStopped()
		return errors.Wrap(err, errors.CodeCapture, "no input device")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(e.sampleRate),
		FramesPerBuffer: e.framesPerBuf,
	}

	buf := make([]float32, e.framesPerBuf)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		e.setStopped()
		return errors.Wrap(err, errors.CodeCapture, "open stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		e.setStopped()
		return errors.Wrap(err, errors.CodeCapture, "start stream")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.stream = stream
	e.cancel = cancel
	e.mu.Unlock()

	slog.Info("audio capture started", "device", dev.Name, "sample_rate", e.sampleRate)

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			default:
			}

			if err := stream.Read(); err != nil {
				slog.Debug("audio read error", "error", err)
				return
			}
			e.ingest(buf)
		}
	}()

	return nil
}

// ingest copies one device buffer into the pending store and reports the
// peak level.
func (e *Engine) ingest(buf []float32) {
	var peak float32
	for _, s := range buf {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}

	e.mu.Lock()
	e.pending = append(e.pending, buf...)
	l := e.listener
	e.mu.Unlock()

	if l != nil {
		l.OnLevel(peak)
	}
}

// Flush delivers all buffered samples to the listener. When Flush returns,
// the samples have been fully handed over; nothing from before the call can
// arrive later.
func (e *Engine) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	samples := e.pending
	e.pending = nil
	l := e.listener
	e.mu.Unlock()

	if l != nil && len(samples) > 0 {
		l.OnSamples(samples)
	}
	return nil
}

// StopRecording stops the stream. Buffered samples survive until the next
// Flush so trailing audio is not lost.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	stream := e.stream
	cancel := e.cancel
	e.stream = nil
	e.cancel = nil
	e.running = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		if err := stream.Stop(); err != nil {
			stream.Close()
			return errors.Wrap(err, errors.CodeCapture, "stop stream")
		}
		if err := stream.Close(); err != nil {
			return errors.Wrap(err, errors.CodeCapture, "close stream")
		}
	}
	return nil
}

func (e *Engine) setStopped() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Terminate releases PortAudio. Call once at process shutdown.
func (e *Engine) Terminate() {
	_ = e.StopRecording()
	_ = portaudio.Terminate()
}
