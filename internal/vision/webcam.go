package vision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sycalabs/ava/pkg/port"
)

// grabber abstracts the frame-grab command so tests can stub it.
type grabber func(ctx context.Context, device, path string) error

// fswebcamGrab shells out to fswebcam, which writes one JPEG frame and
// exits. It is the lightest webcam path on Raspberry Pi class hardware.
func fswebcamGrab(ctx context.Context, device, path string) error {
	args := []string{"-q", "--no-banner", "-r", "1280x720"}
	if device != "" {
		args = append(args, "-d", device)
	}
	args = append(args, path)
	if out, err := exec.CommandContext(ctx, "fswebcam", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("vision: fswebcam: %w: %s", err, out)
	}
	return nil
}

// Webcam implements [Source] by grabbing single JPEG frames from a V4L2
// device. The frame lands in a fixed scratch file that is overwritten on
// every capture.
type Webcam struct {
	device string
	path   string
	grab   grabber
}

// NewWebcam creates a Webcam for the given device (e.g. "/dev/video0";
// empty uses the tool's default).
func NewWebcam(device string) *Webcam {
	return &Webcam{
		device: device,
		path:   filepath.Join(os.TempDir(), "ava-scene.jpg"),
		grab:   fswebcamGrab,
	}
}

// Capture implements [Source].
func (w *Webcam) Capture(ctx context.Context) (port.ImageRef, error) {
	if err := w.grab(ctx, w.device, w.path); err != nil {
		return port.ImageRef{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil || info.Size() == 0 {
		// The tool can exit zero without producing a frame.
		return port.ImageRef{}, nil
	}
	return port.ImageRef{Path: w.path, MIME: "image/jpeg"}, nil
}
