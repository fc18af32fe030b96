package asset

import (
	"fmt"
	"log/slog"

	"cogentcore.org/core/base/errors"
	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/df07/go-turntable-renderer/pkg/imagedec"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

const (
	attrPosition  = "POSITION"
	attrNormal    = "NORMAL"
	attrTexCoord0 = "TEXCOORD_0"
	attrColor0    = "COLOR_0"
)

// primitiveGeometry reads the triangle geometry of a glTF primitive.
// ok is false for primitives that are skipped (non-triangle modes).
func primitiveGeometry(doc *gltf.Document, p *gltf.Primitive) (geom engine.Geometry, ok bool, err error) {
	if p.Mode != gltf.PrimitiveTriangles {
		errors.Log(fmt.Errorf("asset: skipping primitive with mode %v", p.Mode))
		return geom, false, nil
	}

	posIdx, found := p.Attributes[attrPosition]
	if !found {
		return geom, false, fmt.Errorf("asset: primitive has no %s attribute", attrPosition)
	}
	acr, err := accessor(doc, posIdx)
	if err != nil {
		return geom, false, err
	}
	positions, err := modeler.ReadPosition(doc, acr, nil)
	if err != nil {
		return geom, false, fmt.Errorf("asset: read positions: %w", err)
	}
	geom.Positions = make([]mgl32.Vec3, len(positions))
	for i, v := range positions {
		geom.Positions[i] = mgl32.Vec3(v)
	}

	if idx, found := p.Attributes[attrNormal]; found {
		acr, err := accessor(doc, idx)
		if err != nil {
			return geom, false, err
		}
		normals, err := modeler.ReadNormal(doc, acr, nil)
		if err != nil {
			return geom, false, fmt.Errorf("asset: read normals: %w", err)
		}
		geom.Normals = make([]mgl32.Vec3, len(normals))
		for i, v := range normals {
			geom.Normals[i] = mgl32.Vec3(v)
		}
	}

	if idx, found := p.Attributes[attrTexCoord0]; found {
		acr, err := accessor(doc, idx)
		if err != nil {
			return geom, false, err
		}
		uvs, err := modeler.ReadTextureCoord(doc, acr, nil)
		if err != nil {
			return geom, false, fmt.Errorf("asset: read texture coordinates: %w", err)
		}
		geom.UVs = make([]mgl32.Vec2, len(uvs))
		for i, v := range uvs {
			geom.UVs[i] = mgl32.Vec2(v)
		}
	}

	if _, found := p.Attributes[attrColor0]; found {
		slog.Debug("asset: ignoring vertex colors", "attribute", attrColor0)
	}

	if p.Indices != nil {
		acr, err := accessor(doc, *p.Indices)
		if err != nil {
			return geom, false, err
		}
		geom.Indices, err = modeler.ReadIndices(doc, acr, nil)
		if err != nil {
			return geom, false, fmt.Errorf("asset: read indices: %w", err)
		}
	} else {
		geom.Indices = make([]uint32, len(geom.Positions))
		for i := range geom.Indices {
			geom.Indices[i] = uint32(i)
		}
	}
	// Drop a trailing partial triangle
	geom.Indices = geom.Indices[:len(geom.Indices)/3*3]

	return geom, true, nil
}

func accessor(doc *gltf.Document, idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("asset: accessor %d out of range", idx)
	}
	acr := doc.Accessors[idx]
	if acr.BufferView == nil {
		return nil, fmt.Errorf("asset: sparse or empty accessor %d is not supported", idx)
	}
	if _, err := bufferViewData(doc, *acr.BufferView); err != nil {
		return nil, fmt.Errorf("asset: accessor %d: %w", idx, err)
	}
	return acr, nil
}

// materialDesc translates a glTF material into an engine description.
// The name encodes the feature variant so equivalent materials share one shading model.
func materialDesc(m *gltf.Material, texture *imagedec.LinearImage) engine.MaterialDesc {
	desc := engine.MaterialDesc{BaseColor: mgl32.Vec4{1, 1, 1, 1}}
	name := "lit"
	if m != nil {
		desc.DoubleSided = m.DoubleSided
		if pbr := m.PBRMetallicRoughness; pbr != nil && pbr.BaseColorFactor != nil {
			f := pbr.BaseColorFactor
			desc.BaseColor = mgl32.Vec4{float32(f[0]), float32(f[1]), float32(f[2]), float32(f[3])}
		}
	}
	if texture != nil {
		desc.BaseColorTexture = texture
		name += "_textured"
	}
	if desc.DoubleSided {
		name += "_double_sided"
	}
	desc.Name = name
	return desc
}

// baseColorTexture returns the texture index of a material's base color, or -1
func baseColorTexture(m *gltf.Material) int {
	if m == nil || m.PBRMetallicRoughness == nil || m.PBRMetallicRoughness.BaseColorTexture == nil {
		return -1
	}
	return m.PBRMetallicRoughness.BaseColorTexture.Index
}

// attachGeometry builds the primitives of every renderable entity.
// Textures are decoded once per glTF texture and material instances once per glTF material.
func (rl *ResourceLoader) attachGeometry(a *Asset) error {
	doc := a.doc
	textures := make(map[int]*imagedec.LinearImage)
	instances := make(map[int]engine.MaterialInstance)
	var fallback engine.MaterialInstance

	instanceFor := func(idx *int) (engine.MaterialInstance, error) {
		if idx == nil {
			if fallback == nil {
				fallback = rl.engine.CreateMaterial(materialDesc(nil, nil))
				a.instances = append(a.instances, fallback)
			}
			return fallback, nil
		}
		if mi, ok := instances[*idx]; ok {
			return mi, nil
		}
		if *idx < 0 || *idx >= len(doc.Materials) {
			return nil, fmt.Errorf("asset: material %d out of range", *idx)
		}
		m := doc.Materials[*idx]

		var tex *imagedec.LinearImage
		if ti := baseColorTexture(m); ti >= 0 {
			if cached, ok := textures[ti]; ok {
				tex = cached
			} else {
				img, err := rl.loadTexture(doc, ti)
				if err != nil {
					return nil, fmt.Errorf("asset: material %q: %w", m.Name, err)
				}
				tex = &img
				textures[ti] = tex
			}
		}

		mi := rl.engine.CreateMaterial(materialDesc(m, tex))
		instances[*idx] = mi
		a.instances = append(a.instances, mi)
		return mi, nil
	}

	rm := rl.engine.RenderableManager()
	bounds := core.EmptyAABB()
	for _, e := range a.renderables {
		mesh := doc.Meshes[a.meshes[e]]
		var prims []engine.Primitive
		for i, p := range mesh.Primitives {
			geom, ok, err := primitiveGeometry(doc, p)
			if err != nil {
				return fmt.Errorf("mesh %q primitive %d: %w", mesh.Name, i, err)
			}
			if !ok || len(geom.Indices) == 0 {
				continue
			}
			mi, err := instanceFor(p.Material)
			if err != nil {
				return err
			}
			prims = append(prims, engine.Primitive{Geometry: geom, Material: mi})
			bounds = bounds.Union(geom.Bounds().Transform(a.placement[e]))
		}
		if err := rm.SetPrimitives(e, prims); err != nil {
			return fmt.Errorf("mesh %q: %w", mesh.Name, err)
		}
	}

	if !bounds.IsEmpty() {
		a.bounds = bounds
	}
	return nil
}
