package renderer

import (
	"image"
	"math/rand"
)

// Tile represents a rectangular region of the viewport to be rendered
type Tile struct {
	ID     int             // Unique tile identifier
	Bounds image.Rectangle // Pixel bounds relative to the viewport, bottom-left origin
}

// NewTileGrid creates a grid of tiles covering a width x height region
func NewTileGrid(width, height, tileSize int) []Tile {
	if tileSize <= 0 {
		tileSize = width
	}
	var tiles []Tile
	tileID := 0

	// Calculate number of tiles in each dimension
	tilesX := (width + tileSize - 1) / tileSize // Ceiling division
	tilesY := (height + tileSize - 1) / tileSize

	for tileY := 0; tileY < tilesY; tileY++ {
		for tileX := 0; tileX < tilesX; tileX++ {
			x0 := tileX * tileSize
			y0 := tileY * tileSize
			x1 := min(x0+tileSize, width) // Don't exceed image bounds
			y1 := min(y0+tileSize, height)

			tiles = append(tiles, Tile{ID: tileID, Bounds: image.Rect(x0, y0, x1, y1)})
			tileID++
		}
	}

	return tiles
}

// TileRenderer shades the pixels of individual tiles for one frame
type TileRenderer struct {
	frame *frameState
}

// NewTileRenderer creates a tile renderer for a captured frame
func NewTileRenderer(frame *frameState) *TileRenderer {
	return &TileRenderer{frame: frame}
}

// RenderTileBounds renders the pixels of bounds into out. Sample positions
// come from a generator seeded by the tile ID so repeated renders are identical.
func (tr *TileRenderer) RenderTileBounds(tile Tile, out *colorBuffer) RenderStats {
	f := tr.frame
	random := rand.New(rand.NewSource(int64(tile.ID + 42))) // +42 to avoid seed 0
	samples := max(1, f.samples)

	stats := RenderStats{TotalPixels: tile.Bounds.Dx() * tile.Bounds.Dy(), Tiles: 1}
	vpW, vpH := float32(f.viewport.Width), float32(f.viewport.Height)

	for j := tile.Bounds.Min.Y; j < tile.Bounds.Max.Y; j++ {
		for i := tile.Bounds.Min.X; i < tile.Bounds.Max.X; i++ {
			var px pixelAccum
			for s := 0; s < samples; s++ {
				// The first sample goes through the pixel center.
				dx, dy := float32(0.5), float32(0.5)
				if s > 0 {
					dx, dy = random.Float32(), random.Float32()
				}
				origin, dir := f.rays.ray((float32(i)+dx)/vpW, (float32(j)+dy)/vpH)
				c, hit := f.shade(origin, dir)
				if hit {
					stats.HitSamples++
				}
				px.addSample(c)
			}
			stats.TotalSamples += samples

			x, y := f.viewport.Left+i, f.viewport.Bottom+j
			if x >= 0 && x < out.width && y >= 0 && y < out.height {
				out.set(x, y, encodePixel(px.color()))
			}
		}
	}
	return stats
}
