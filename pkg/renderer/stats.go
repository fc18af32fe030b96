package renderer

import "github.com/go-gl/mathgl/mgl32"

// RenderStats contains statistics about the rendering of one color buffer
type RenderStats struct {
	TotalPixels  int // Total number of pixels rendered
	TotalSamples int // Total number of samples taken
	HitSamples   int // Samples whose primary ray hit geometry
	Tiles        int // Number of tiles rendered
}

// merge accumulates another tile's statistics
func (s *RenderStats) merge(other RenderStats) {
	s.TotalPixels += other.TotalPixels
	s.TotalSamples += other.TotalSamples
	s.HitSamples += other.HitSamples
	s.Tiles += other.Tiles
}

// Coverage returns the fraction of samples that hit geometry
func (s RenderStats) Coverage() float64 {
	if s.TotalSamples == 0 {
		return 0
	}
	return float64(s.HitSamples) / float64(s.TotalSamples)
}

// pixelAccum averages the samples of a single pixel
type pixelAccum struct {
	colorAccum  mgl32.Vec4
	sampleCount int
}

// addSample adds a new RGBA sample
func (p *pixelAccum) addSample(c mgl32.Vec4) {
	p.colorAccum = p.colorAccum.Add(c)
	p.sampleCount++
}

// color returns the average of the samples taken so far
func (p *pixelAccum) color() mgl32.Vec4 {
	if p.sampleCount == 0 {
		return mgl32.Vec4{}
	}
	return p.colorAccum.Mul(1 / float32(p.sampleCount))
}
