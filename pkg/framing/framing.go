// Package framing places an arbitrarily sized asset into a canonical viewing volume.
//
// The placement is a uniform scale and translation that maps the asset's
// bounding box into a unit cube centered at the origin, optionally followed
// by a world-space rotation converting between up-axis conventions.
package framing

import (
	"errors"
	"fmt"
	"math"

	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrDegenerateBounds is returned for boxes whose largest extent is zero or not finite
var ErrDegenerateBounds = errors.New("framing: degenerate bounding box")

// UpAxis names the axis a coordinate convention treats as vertical
type UpAxis int

const (
	YUp UpAxis = iota // glTF convention
	ZUp               // Blender convention
)

// String returns the axis name
func (a UpAxis) String() string {
	switch a {
	case YUp:
		return "y-up"
	case ZUp:
		return "z-up"
	default:
		return fmt.Sprintf("UpAxis(%d)", int(a))
	}
}

// Fit holds the intermediate quantities of a unit-cube fit
type Fit struct {
	MaxExtent float32
	Scale     float32
	Center    mgl32.Vec3
	Transform mgl32.Mat4
}

// FitIntoUnitCube returns the transform scale(1/maxExtent) * translate(-center).
//
// zOffset is expressed in pre-scale units and converted to the post-scale
// frame by dividing it by the scale factor before it is added to the
// center's z. Whether the division is meant as that conversion or is
// inverted has not been checked against the intended framing; every caller
// passes 0.
func FitIntoUnitCube(bounds core.AABB, zOffset float32) (mgl32.Mat4, error) {
	fit, err := ComputeFit(bounds, zOffset)
	if err != nil {
		return mgl32.Ident4(), err
	}
	return fit.Transform, nil
}

// ComputeFit is FitIntoUnitCube with its intermediate values exposed
func ComputeFit(bounds core.AABB, zOffset float32) (Fit, error) {
	if !bounds.IsValid() {
		return Fit{}, fmt.Errorf("%w: invalid box min=%v max=%v", ErrDegenerateBounds, bounds.Min, bounds.Max)
	}

	maxExtent := bounds.MaxExtent()
	if !(maxExtent > 0) || math.IsInf(float64(maxExtent), 0) {
		return Fit{}, fmt.Errorf("%w: max extent %v", ErrDegenerateBounds, maxExtent)
	}

	scale := 1 / maxExtent
	center := bounds.Center()
	center[2] += zOffset / scale

	return Fit{
		MaxExtent: maxExtent,
		Scale:     scale,
		Center:    center,
		Transform: mgl32.Scale3D(scale, scale, scale).Mul4(mgl32.Translate3D(-center[0], -center[1], -center[2])),
	}, nil
}

// CoordinateConversion returns the world-space rotation taking the source up-axis
// convention to the target one
func CoordinateConversion(source, target UpAxis) (mgl32.Mat4, error) {
	switch {
	case source == target:
		return mgl32.Ident4(), nil
	case source == YUp && target == ZUp:
		rot := mgl32.Mat3FromCols(
			mgl32.Vec3{1, 0, 0},
			mgl32.Vec3{0, 0, -1},
			mgl32.Vec3{0, 1, 0},
		)
		return rot.Transpose().Mat4(), nil
	case source == ZUp && target == YUp:
		rot := mgl32.Mat3FromCols(
			mgl32.Vec3{1, 0, 0},
			mgl32.Vec3{0, 0, -1},
			mgl32.Vec3{0, 1, 0},
		)
		return rot.Mat4(), nil
	default:
		return mgl32.Ident4(), fmt.Errorf("framing: no conversion from %v to %v", source, target)
	}
}

// Placement composes the root transform for an asset: the unit-cube fit first,
// then the coordinate conversion in world space
func Placement(bounds core.AABB, zOffset float32, source, target UpAxis) (mgl32.Mat4, error) {
	fit, err := FitIntoUnitCube(bounds, zOffset)
	if err != nil {
		return mgl32.Ident4(), err
	}
	conv, err := CoordinateConversion(source, target)
	if err != nil {
		return mgl32.Ident4(), err
	}
	return conv.Mul4(fit), nil
}

// CameraPose is a fixed lookAt triple
type CameraPose struct {
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3
}

// DefaultPose frames the unit cube before any turntable view is selected
var DefaultPose = CameraPose{
	Eye:    mgl32.Vec3{4, 0, -4},
	Target: mgl32.Vec3{0, 0, -4},
	Up:     mgl32.Vec3{0, 1, 0},
}
