// Package computer captures the screen and injects pointer/keyboard input
// on an X11 display. It owns the mapping between the logical coordinate
// space the model reasons in and the physical pixel space of the device:
// nothing outside this package converts between the two.
package computer

import (
	"fmt"
	"math"
)

// Point is a pixel position. Whether it is logical or physical is decided
// by the function signature it passes through, never by the value itself.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// scalingTarget is a resolution the model is allowed to see.
type scalingTarget struct {
	name   string
	width  int
	height int
}

// Standard downscale targets, largest preferred. A target applies when its
// aspect ratio is within ratioTolerance of the physical ratio and it is
// strictly smaller than the physical width.
var scalingTargets = []scalingTarget{
	{"FWXGA", 1366, 768},
	{"WXGA", 1280, 800},
	{"XGA", 1024, 768},
}

const ratioTolerance = 0.02

// DisplaySpec fixes, for the lifetime of a run, the physical resolution and
// the logical resolution presented to the model.
type DisplaySpec struct {
	PhysicalWidth  int
	PhysicalHeight int
	TargetWidth    int
	TargetHeight   int
}

// NewDisplaySpec derives the scaling geometry from the physical resolution. When
// overrideW/overrideH are non-zero they force the logical resolution;
// otherwise the best standard target is chosen, falling back to 1:1 when
// none fits the aspect ratio.
func NewDisplaySpec(physW, physH, overrideW, overrideH int) (DisplaySpec, error) {
	if physW <= 0 || physH <= 0 {
		return DisplaySpec{}, fmt.Errorf("invalid physical resolution %dx%d", physW, physH)
	}

	spec := DisplaySpec{
		PhysicalWidth:  physW,
		PhysicalHeight: physH,
		TargetWidth:    physW,
		TargetHeight:   physH,
	}

	if overrideW > 0 && overrideH > 0 {
		if overrideW > physW || overrideH > physH {
			return DisplaySpec{}, fmt.Errorf("target %dx%d exceeds physical %dx%d", overrideW, overrideH, physW, physH)
		}
		spec.TargetWidth = overrideW
		spec.TargetHeight = overrideH
		return spec, nil
	}

	ratio := float64(physW) / float64(physH)
	for _, t := range scalingTargets {
		if math.Abs(float64(t.width)/float64(t.height)-ratio) > ratioTolerance {
			continue
		}
		if t.width >= physW {
			continue
		}
		spec.TargetWidth = t.width
		spec.TargetHeight = t.height
		break
	}
	return spec, nil
}

// ScalingEnabled reports whether logical and physical space differ.
func (d DisplaySpec) ScalingEnabled() bool {
	return d.TargetWidth != d.PhysicalWidth || d.TargetHeight != d.PhysicalHeight
}

// InBounds reports whether a logical point lies inside the target space.
func (d DisplaySpec) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= d.TargetWidth && p.Y <= d.TargetHeight
}

// ToPhysical maps a logical (model-space) point to device pixels, rounding
// to the nearest pixel and clamping to the physical bounds. Out-of-bounds
// logical input is rejected so the model learns the real screen edges.
func (d DisplaySpec) ToPhysical(p Point) (Point, error) {
	if !d.InBounds(p) {
		return Point{}, fmt.Errorf("coordinates %s are out of bounds for %dx%d", p, d.TargetWidth, d.TargetHeight)
	}
	if !d.ScalingEnabled() {
		return d.clampPhysical(p), nil
	}
	sx := float64(d.PhysicalWidth) / float64(d.TargetWidth)
	sy := float64(d.PhysicalHeight) / float64(d.TargetHeight)
	return d.clampPhysical(Point{
		X: int(math.Round(float64(p.X) * sx)),
		Y: int(math.Round(float64(p.Y) * sy)),
	}), nil
}

// ToLogical maps a physical point into model space, rounding to nearest.
func (d DisplaySpec) ToLogical(p Point) Point {
	if !d.ScalingEnabled() {
		return p
	}
	sx := float64(d.TargetWidth) / float64(d.PhysicalWidth)
	sy := float64(d.TargetHeight) / float64(d.PhysicalHeight)
	out := Point{
		X: int(math.Round(float64(p.X) * sx)),
		Y: int(math.Round(float64(p.Y) * sy)),
	}
	if out.X > d.TargetWidth {
		out.X = d.TargetWidth
	}
	if out.Y > d.TargetHeight {
		out.Y = d.TargetHeight
	}
	return out
}

func (d DisplaySpec) clampPhysical(p Point) Point {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.X >= d.PhysicalWidth {
		p.X = d.PhysicalWidth - 1
	}
	if p.Y >= d.PhysicalHeight {
		p.Y = d.PhysicalHeight - 1
	}
	return p
}
