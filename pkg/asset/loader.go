package asset

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/df07/go-turntable-renderer/pkg/codec"
	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/h2non/filetype"
	"github.com/qmuntal/gltf"
)

const (
	glbVersion   = 2
	glbChunkJSON = 0x4E4F534A
	glbChunkBIN  = 0x004E4942
)

// Loader creates assets in an engine
type Loader struct {
	engine engine.Engine
}

// NewLoader creates a loader bound to e
func NewLoader(e engine.Engine) *Loader {
	return &Loader{engine: e}
}

// CreateAsset parses data and creates the asset's entities. glTF geometry is
// attached later by ResourceLoader.LoadResources; PLY geometry is attached
// immediately.
func (l *Loader) CreateAsset(data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAsset
	}

	switch format := DetectFormat(data); format {
	case FormatGLB:
		doc, err := parseGLB(data)
		if err != nil {
			return nil, err
		}
		return l.createFromDocument(doc, format)
	case FormatGLTF:
		doc := new(gltf.Document)
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("asset: parse gltf: %w", err)
		}
		return l.createFromDocument(doc, format)
	case FormatPLY:
		mesh, err := parsePLY(data)
		if err != nil {
			return nil, fmt.Errorf("asset: %w", err)
		}
		return l.createFromPLY(mesh)
	default:
		kind, _ := filetype.Match(data)
		return nil, fmt.Errorf("%w (detected %q)", ErrUnknownAssetFormat, kind.MIME.Value)
	}
}

// DestroyAsset destroys every entity of a
func (l *Loader) DestroyAsset(a *Asset) {
	if a == nil {
		return
	}
	for i := len(a.entities) - 1; i >= 0; i-- {
		l.engine.DestroyEntity(a.entities[i])
	}
	a.entities, a.renderables = nil, nil
}

// parseGLB splits a binary glTF container into its JSON document and BIN chunk
func parseGLB(data []byte) (*gltf.Document, error) {
	r := bytes.NewReader(data)

	var header [3]uint32
	for i := range header {
		v, err := codec.ReadUint32(r, binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("asset: glb header: %w", err)
		}
		header[i] = v
	}
	if version := header[1]; version != glbVersion {
		return nil, fmt.Errorf("asset: unsupported glb version %d", version)
	}
	if length := header[2]; int(length) > len(data) {
		return nil, fmt.Errorf("asset: glb declares %d bytes, have %d", length, len(data))
	}
	r = bytes.NewReader(data[:header[2]])
	if _, err := r.Seek(12, io.SeekStart); err != nil {
		return nil, err
	}

	var doc *gltf.Document
	var bin []byte
	for r.Len() > 0 {
		chunkLength, err := codec.ReadUint32(r, binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("asset: glb chunk: %w", err)
		}
		chunkType, err := codec.ReadUint32(r, binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("asset: glb chunk: %w", err)
		}
		if int64(chunkLength) > int64(r.Len()) {
			return nil, fmt.Errorf("asset: glb chunk of %d bytes overruns the file", chunkLength)
		}
		chunk := make([]byte, chunkLength)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("asset: glb chunk: %w", err)
		}

		switch chunkType {
		case glbChunkJSON:
			doc = new(gltf.Document)
			if err := json.Unmarshal(chunk, doc); err != nil {
				return nil, fmt.Errorf("asset: parse glb json: %w", err)
			}
		case glbChunkBIN:
			if bin == nil {
				bin = chunk
			}
		}
	}

	if doc == nil {
		return nil, fmt.Errorf("asset: glb has no json chunk")
	}
	if bin != nil && len(doc.Buffers) > 0 && doc.Buffers[0].URI == "" {
		if n := doc.Buffers[0].ByteLength; n > 0 && n <= len(bin) {
			bin = bin[:n]
		}
		doc.Buffers[0].Data = bin
	}
	return doc, nil
}

func (l *Loader) createFromDocument(doc *gltf.Document, format Format) (*Asset, error) {
	a := &Asset{
		format:    format,
		doc:       doc,
		meshes:    make(map[engine.Entity]int),
		placement: make(map[engine.Entity]mgl32.Mat4),
		bounds:    core.EmptyAABB(),
	}
	tm := l.engine.TransformManager()
	a.root = l.engine.CreateEntity()
	tm.Create(a.root)
	a.entities = append(a.entities, a.root)

	visited := make(map[int]bool)
	var visit func(node int, parent engine.Entity, parentMatrix mgl32.Mat4) error
	visit = func(node int, parent engine.Entity, parentMatrix mgl32.Mat4) error {
		if node < 0 || node >= len(doc.Nodes) {
			return fmt.Errorf("asset: node index %d out of range", node)
		}
		if visited[node] {
			return fmt.Errorf("asset: node %d is reachable twice", node)
		}
		visited[node] = true

		n := doc.Nodes[node]
		local := nodeMatrix(n)
		world := parentMatrix.Mul4(local)

		e := l.engine.CreateEntity()
		a.entities = append(a.entities, e)
		tm.SetTransform(e, local)
		tm.SetParent(e, parent)
		a.placement[e] = world

		if n.Mesh != nil {
			if *n.Mesh < 0 || *n.Mesh >= len(doc.Meshes) {
				return fmt.Errorf("asset: node %d references missing mesh %d", node, *n.Mesh)
			}
			a.renderables = append(a.renderables, e)
			a.meshes[e] = *n.Mesh
			a.bounds = a.bounds.Union(accessorBounds(doc, doc.Meshes[*n.Mesh], world))
		}

		for _, child := range n.Children {
			if err := visit(child, e, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, node := range sceneRoots(doc) {
		if err := visit(node, a.root, mgl32.Ident4()); err != nil {
			l.DestroyAsset(a)
			return nil, err
		}
	}

	slog.Info("asset: created",
		"format", format.String(),
		"nodes", len(a.entities)-1,
		"renderables", len(a.renderables),
		"buffers", len(doc.Buffers),
		"images", len(doc.Images))
	return a, nil
}

func (l *Loader) createFromPLY(mesh *plyMesh) (*Asset, error) {
	a := &Asset{format: FormatPLY, ply: mesh, bounds: core.EmptyAABB()}
	a.root = l.engine.CreateEntity()
	l.engine.TransformManager().Create(a.root)
	e := l.engine.CreateEntity()
	l.engine.TransformManager().SetParent(e, a.root)
	a.entities = []engine.Entity{a.root, e}
	a.renderables = []engine.Entity{e}

	mi := l.engine.CreateMaterial(engine.MaterialDesc{
		Name:        "lit_vertex_color",
		BaseColor:   mgl32.Vec4{1, 1, 1, 1},
		DoubleSided: true,
	})
	a.instances = append(a.instances, mi)

	geom := engine.Geometry{
		Positions: mesh.Positions,
		Normals:   mesh.Normals,
		Colors:    mesh.Colors,
		Indices:   mesh.Indices,
	}
	if err := l.engine.RenderableManager().SetPrimitives(e, []engine.Primitive{{Geometry: geom, Material: mi}}); err != nil {
		l.DestroyAsset(a)
		return nil, fmt.Errorf("asset: ply geometry: %w", err)
	}
	if len(mesh.Positions) > 0 {
		a.bounds = geom.Bounds()
	}
	a.loaded = true

	slog.Info("asset: created",
		"format", FormatPLY.String(),
		"vertices", len(mesh.Positions),
		"triangles", len(mesh.Indices)/3)
	return a, nil
}

// sceneRoots returns the root nodes of the default scene, falling back to the
// first scene and then to every node without a parent
func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			scene = *doc.Scene
		}
		return doc.Scenes[scene].Nodes
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// nodeMatrix returns the local transform of a node from its matrix or its TRS properties
func nodeMatrix(n *gltf.Node) mgl32.Mat4 {
	if n.Matrix != identityMatrix && n.Matrix != [16]float64{} {
		var m mgl32.Mat4
		for i, v := range n.Matrix { // both column-major
			m[i] = float32(v)
		}
		return m
	}

	t := n.Translation
	translation := mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2]))

	rotation := mgl32.Ident4()
	if q := n.Rotation; q != [4]float64{} {
		quat := mgl32.Quat{W: float32(q[3]), V: mgl32.Vec3{float32(q[0]), float32(q[1]), float32(q[2])}}
		rotation = quat.Normalize().Mat4()
	}

	scale := mgl32.Ident4()
	if s := n.Scale; s != [3]float64{} {
		scale = mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2]))
	}
	return translation.Mul4(rotation).Mul4(scale)
}

// accessorBounds unions the POSITION accessor bounds of a mesh's primitives,
// transformed by world. Accessors without min/max contribute nothing.
func accessorBounds(doc *gltf.Document, mesh *gltf.Mesh, world mgl32.Mat4) core.AABB {
	box := core.EmptyAABB()
	for _, p := range mesh.Primitives {
		idx, ok := p.Attributes[attrPosition]
		if !ok || idx < 0 || idx >= len(doc.Accessors) {
			continue
		}
		acr := doc.Accessors[idx]
		if len(acr.Min) < 3 || len(acr.Max) < 3 {
			continue
		}
		local := core.NewAABB(
			mgl32.Vec3{float32(acr.Min[0]), float32(acr.Min[1]), float32(acr.Min[2])},
			mgl32.Vec3{float32(acr.Max[0]), float32(acr.Max[1]), float32(acr.Max[2])},
		)
		box = box.Union(local.Transform(world))
	}
	return box
}
