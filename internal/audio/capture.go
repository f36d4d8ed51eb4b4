package audio

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"ember/internal/coreerr"
	"ember/pkg/audioconv"
)

// CaptureSession owns one device stream, its resampler, and its ring
// buffer for the lifetime described in spec.md §3: created when audio
// starts, destroyed on restart or shutdown. The process holds at most
// one at a time — enforced by the Runtime Supervisor, not by this type.
type CaptureSession struct {
	device     DeviceId
	nativeRate int
	channels   int
	frameMs    int

	stream *portaudio.Stream
	buf    []float32
	ring   *RingBuffer

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	onError func(*coreerr.CoreError)
}

// CaptureOptions configures a new session.
type CaptureOptions struct {
	Device     DeviceId
	DeviceIdx  int
	NativeRate int // 0 => device default
	Channels   int // 0 => 1
	FrameMs    int // canonical frame length, default 20
	RingMinMs  int // ring buffer capacity floor, default 200 (spec.md §4.2)
	OnError    func(*coreerr.CoreError)
}

// StartCapture opens the given device and begins pushing canonical
// 16kHz mono i16 frames into the returned session's ring buffer.
func StartCapture(opt CaptureOptions) (*CaptureSession, *coreerr.CoreError) {
	if opt.Channels <= 0 {
		opt.Channels = 1
	}
	if opt.FrameMs <= 0 {
		opt.FrameMs = 20
	}
	if opt.RingMinMs <= 0 {
		opt.RingMinMs = 200
	}
	if opt.NativeRate <= 0 {
		opt.NativeRate = 16000
		if d := deviceByIndex(opt.DeviceIdx); d != nil && d.DefaultSampleRate > 0 {
			opt.NativeRate = int(d.DefaultSampleRate)
		}
	}

	nativeFrameSamples := opt.NativeRate * opt.FrameMs / 1000 * opt.Channels
	buf := make([]float32, nativeFrameSamples)

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   deviceByIndex(opt.DeviceIdx),
			Channels: opt.Channels,
			Latency:  0,
		},
		SampleRate:      float64(opt.NativeRate),
		FramesPerBuffer: len(buf) / opt.Channels,
	}, buf)
	if err != nil {
		return nil, translatePortaudioErr(err)
	}

	cs := &CaptureSession{
		device:     opt.Device,
		nativeRate: opt.NativeRate,
		channels:   opt.Channels,
		frameMs:    opt.FrameMs,
		stream:     stream,
		buf:        buf,
		ring:       NewRingBuffer(opt.RingMinMs, opt.FrameMs),
		stopCh:     make(chan struct{}),
		onError:    opt.OnError,
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, translatePortaudioErr(err)
	}

	cs.wg.Add(1)
	go cs.readLoop()

	return cs, nil
}

func deviceByIndex(idx int) *portaudio.DeviceInfo {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil
	}
	for _, d := range devices {
		if d != nil && int(d.Index) == idx {
			return d
		}
	}
	return nil
}

func (cs *CaptureSession) readLoop() {
	defer cs.wg.Done()
	for {
		select {
		case <-cs.stopCh:
			return
		default:
		}

		if err := cs.stream.Read(); err != nil {
			if cs.onError != nil {
				cs.onError(translatePortaudioErr(err))
			}
			return
		}

		mono := cs.buf
		if cs.channels > 1 {
			mono = audioconv.Downmix(cs.buf, cs.channels)
		}
		resampled := mono
		if cs.nativeRate != 16000 {
			resampled = audioconv.ResampleLinear(mono, cs.nativeRate, 16000)
		}
		i16 := audioconv.QuantizeI16Saturating(resampled)

		cs.ring.Push(Frame{Samples: i16})
	}
}

// Ring exposes the session's frame queue to the VAD/KWS chain.
func (cs *CaptureSession) Ring() *RingBuffer { return cs.ring }

// Device reports the DeviceId this session was opened against.
func (cs *CaptureSession) Device() DeviceId { return cs.device }

// Close tears the session down: stops the goroutine, closes the ring
// buffer (unblocking any consumer), then stops and closes the stream.
func (cs *CaptureSession) Close() error {
	cs.stopOnce.Do(func() {
		close(cs.stopCh)
	})
	cs.wg.Wait()
	cs.ring.Close()
	if cs.stream != nil {
		_ = cs.stream.Stop()
		return cs.stream.Close()
	}
	return nil
}

// InitPortAudio brings up the underlying portaudio library. Call once at
// process startup (mirrors the teacher's Recorder.Init) before any
// Registry or StartCapture call.
func InitPortAudio() *coreerr.CoreError {
	if err := portaudio.Initialize(); err != nil {
		return translatePortaudioErr(err)
	}
	return nil
}

// TerminatePortAudio releases the underlying portaudio library. Call
// once at process shutdown.
func TerminatePortAudio() error {
	return portaudio.Terminate()
}
