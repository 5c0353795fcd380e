package audio

import (
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/gemikid/tutor/pkg/core"
)

// Microphone delivers captured PCM frames until closed.
type Microphone interface {
	Frames() <-chan []byte
	Close()
}

// CaptureDevice records 16kHz mono s16le PCM from the default input device.
type CaptureDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	frames    chan []byte
	closeOnce sync.Once
}

// OpenMicrophone acquires the default capture device. Failures map to a
// media access error so callers can surface them without crashing.
func OpenMicrophone() (Microphone, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, core.NewMediaAccessError("microphone unavailable: " + err.Error())
	}

	d := &CaptureDevice{
		ctx: mctx,
		// Room for ~1s of 20ms frames; late consumers drop frames rather
		// than stalling the capture callback.
		frames: make(chan []byte, 50),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = MicSampleRateHz
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			frame := append([]byte(nil), input...)
			select {
			case d.frames <- frame:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return nil, core.NewMediaAccessError("microphone unavailable: " + err.Error())
	}
	d.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return nil, core.NewMediaAccessError("microphone could not start: " + err.Error())
	}
	return d, nil
}

// Frames returns the channel of captured PCM frames.
func (d *CaptureDevice) Frames() <-chan []byte {
	return d.frames
}

// Close stops capture and releases the device.
func (d *CaptureDevice) Close() {
	d.closeOnce.Do(func() {
		if d.device != nil {
			_ = d.device.Stop()
			d.device.Uninit()
		}
		if d.ctx != nil {
			_ = d.ctx.Uninit()
		}
		close(d.frames)
	})
}
