package computer

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	shellwords "github.com/mattn/go-shellwords"
)

// Capturer takes screenshots and downsamples them to the DisplaySpec
// target, so the model only ever sees the logical resolution it is told
// about.
type Capturer struct {
	display    DisplaySpec
	captureCmd []string // binary + args; screenshot path appended
	outDir     string
	run        runner
}

// NewCapturer parses the configured capture command line (e.g. "scrot -z"
// or "import -window root").
func NewCapturer(display DisplaySpec, captureCommand string, displayNum int) (*Capturer, error) {
	argv, err := shellwords.Parse(captureCommand)
	if err != nil {
		return nil, fmt.Errorf("parse capture command %q: %w", captureCommand, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty capture command")
	}
	return &Capturer{
		display:    display,
		captureCmd: argv,
		outDir:     filepath.Join(os.TempDir(), "deskhand"),
		run:        &execRunner{displayNum: displayNum},
	}, nil
}

// Display returns the DisplaySpec this capturer downsamples to.
func (c *Capturer) Display() DisplaySpec { return c.display }

// Capture grabs the screen and returns PNG bytes at the target resolution.
func (c *Capturer) Capture(ctx context.Context) ([]byte, error) {
	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return nil, &CaptureError{Reason: "create output dir", Err: err}
	}
	path := filepath.Join(c.outDir, "screenshot_"+uuid.NewString()+".png")
	defer os.Remove(path)

	args := append(append([]string{}, c.captureCmd[1:]...), path)
	start := time.Now()
	if _, err := c.run.run(ctx, c.captureCmd[0], args...); err != nil {
		return nil, &CaptureError{Reason: "capture command", Err: err}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &CaptureError{Reason: "read screenshot", Err: err}
	}

	out, err := c.downsample(raw)
	if err != nil {
		return nil, err
	}
	slog.Debug("screen captured",
		"bytes", len(out),
		"target", fmt.Sprintf("%dx%d", c.display.TargetWidth, c.display.TargetHeight),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (c *Capturer) downsample(raw []byte) ([]byte, error) {
	if !c.display.ScalingEnabled() {
		return raw, nil
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &CaptureError{Reason: "decode screenshot", Err: err}
	}
	resized := imaging.Resize(img, c.display.TargetWidth, c.display.TargetHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, &CaptureError{Reason: "encode screenshot", Err: err}
	}
	return buf.Bytes(), nil
}

// ProbePhysicalResolution asks the input binary for the display geometry
// ("xdotool getdisplaygeometry" prints "W H").
func ProbePhysicalResolution(ctx context.Context, inputBinary string, displayNum int) (int, int, error) {
	r := &execRunner{displayNum: displayNum}
	out, err := r.run(ctx, inputBinary, "getdisplaygeometry")
	if err != nil {
		return 0, 0, &CaptureError{Reason: "probe display geometry", Err: err}
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return 0, 0, &CaptureError{Reason: fmt.Sprintf("unexpected geometry output %q", out)}
	}
	w, err1 := strconv.Atoi(fields[0])
	h, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, &CaptureError{Reason: fmt.Sprintf("unexpected geometry output %q", out)}
	}
	return w, h, nil
}
