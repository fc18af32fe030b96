// Package capture renders the fixed turntable views of a framed scene and
// writes each one to an image file.
//
// A capture submits a frame, requests an asynchronous readback and then keeps
// submitting frames until the backend delivers the pixels. The backend only
// completes a readback after later frames were processed, so the pump loop is
// what guarantees progress.
package capture

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ViewDirections are the turntable view directions in z-up world space, in
// output order
var ViewDirections = [...]mgl32.Vec3{
	{0, -1, 0},
	{1, 0, 0},
	{0, 1, 0},
	{-1, 0, 0},
	{1, -1, 1},
	{1, 1, 1},
	{-1, 1, 1},
	{-1, -1, 1},
	{0, 0, 1},
}

// EyeDistance is the camera distance from the origin for every view
const EyeDistance = 2

var zAxis = mgl32.Vec3{0, 0, 1}

// UpVector returns the camera up vector for a view direction. Z is up unless
// the view looks straight down, where Y is used instead.
func UpVector(dir mgl32.Vec3) mgl32.Vec3 {
	if dir.Sub(zAxis).Len() < 1e-6 {
		return mgl32.Vec3{0, 1, 0}
	}
	return zAxis
}

// EyePosition places the camera EyeDistance from the origin along dir
func EyePosition(dir mgl32.Vec3) mgl32.Vec3 {
	return dir.Normalize().Mul(EyeDistance)
}

// Filename returns the output name of the i-th view
func Filename(i int, ext string) string {
	return fmt.Sprintf("render%02d.%s", i, ext)
}
