package audiocapture

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// openPortAudio opens a mono int16 input stream on the named device, or the
// system default input when device is empty. rate 0 selects the device's
// native rate.
func openPortAudio(device string, rate float64, framesPerBuffer int, cb func([]int16)) (stream, float64, error) {
	info, err := inputDevice(device)
	if err != nil {
		return nil, 0, err
	}

	if rate == 0 {
		rate = info.DefaultSampleRate
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = rate
	params.FramesPerBuffer = framesPerBuffer

	stm, err := portaudio.OpenStream(params, func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 {
			// Recoverable: the device dropped input before we saw it.
			slog.Debug("portaudio input overflow")
		}
		cb(in)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("open stream at %g Hz: %w", rate, err)
	}

	slog.Info("input stream opened", "device", info.Name, "rate", rate)
	return stm, rate, nil
}

// inputDevice resolves a device name to PortAudio device info.
func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", name)
}
