// Package asset loads 3D scene assets (glTF 2.0 JSON, GLB and PLY) into engine
// entities. Creating an asset parses the document and builds the entity
// hierarchy; a ResourceLoader then resolves buffers and textures and attaches
// geometry and materials to the renderable entities.
package asset

import (
	"bytes"
	"errors"

	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/h2non/filetype"
	"github.com/qmuntal/gltf"
)

var (
	ErrEmptyAsset         = errors.New("asset: empty asset data")
	ErrUnknownAssetFormat = errors.New("asset: unknown asset format")
	ErrResourcesLoaded    = errors.New("asset: resources already loaded")
)

// Format identifies an asset container
type Format int

const (
	FormatUnknown Format = iota
	FormatGLB
	FormatGLTF
	FormatPLY
)

// String returns the conventional file extension of the format
func (f Format) String() string {
	switch f {
	case FormatGLB:
		return "glb"
	case FormatGLTF:
		return "gltf"
	case FormatPLY:
		return "ply"
	default:
		return "unknown"
	}
}

var (
	glbMagic = []byte("glTF")
	plyMagic = []byte("ply")
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// Types registered with filetype so diagnostics can name asset files
var (
	GLBType  = filetype.NewType("glb", "model/gltf-binary")
	GLTFType = filetype.NewType("gltf", "model/gltf+json")
	PLYType  = filetype.NewType("ply", "model/x-ply")
)

func init() {
	filetype.AddMatcher(GLBType, func(head []byte) bool { return DetectFormat(head) == FormatGLB })
	filetype.AddMatcher(GLTFType, func(head []byte) bool { return DetectFormat(head) == FormatGLTF })
	filetype.AddMatcher(PLYType, func(head []byte) bool { return DetectFormat(head) == FormatPLY })
}

// DetectFormat sniffs the container format from the leading bytes
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, glbMagic):
		return FormatGLB
	case bytes.HasPrefix(data, plyMagic) && len(data) > len(plyMagic) &&
		(data[3] == '\n' || data[3] == '\r'):
		return FormatPLY
	}

	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatGLTF
	}
	return FormatUnknown
}

// Asset is a loaded scene: a root entity, one entity per node and the
// renderables among them
type Asset struct {
	format      Format
	doc         *gltf.Document
	ply         *plyMesh
	root        engine.Entity
	entities    []engine.Entity
	renderables []engine.Entity
	meshes      map[engine.Entity]int        // glTF mesh index per renderable
	placement   map[engine.Entity]mgl32.Mat4 // node transform relative to the root
	bounds      core.AABB
	instances   []engine.MaterialInstance
	loaded      bool
}

// Format returns the container format the asset was parsed from
func (a *Asset) Format() Format { return a.format }

// Root returns the entity every top-level node is parented to
func (a *Asset) Root() engine.Entity { return a.root }

// Entities returns every entity created for the asset, root first
func (a *Asset) Entities() []engine.Entity { return a.entities }

// RenderableEntities returns the entities that carry geometry
func (a *Asset) RenderableEntities() []engine.Entity { return a.renderables }

// BoundingBox returns the bounds of all geometry in the root's space.
// For glTF it comes from accessor bounds until resources are loaded.
func (a *Asset) BoundingBox() core.AABB { return a.bounds }

// MaterialInstances returns the material instances created for the asset
func (a *Asset) MaterialInstances() []engine.MaterialInstance { return a.instances }

// ResourcesLoaded reports whether geometry has been attached to the renderables
func (a *Asset) ResourcesLoaded() bool { return a.loaded }
