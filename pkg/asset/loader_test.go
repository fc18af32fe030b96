package asset

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/df07/go-turntable-renderer/pkg/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleBuffer holds three float positions followed by three uint16 indices
// padded to 44 bytes
func triangleBuffer(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [3][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [4]uint16{0, 1, 2, 0}))
	return buf.Bytes()
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// triangleGLTF describes a red triangle under a translated parent node. A
// non-empty imageURI adds a base color texture.
func triangleGLTF(bufferURI, imageURI string) string {
	buffer := `{"byteLength":44}`
	if bufferURI != "" {
		buffer = fmt.Sprintf(`{"byteLength":44,"uri":%q}`, bufferURI)
	}
	material := `{"name":"red","doubleSided":true,"pbrMetallicRoughness":{"baseColorFactor":[1,0,0,1]}}`
	textures := ""
	if imageURI != "" {
		material = `{"name":"red","doubleSided":true,"pbrMetallicRoughness":{"baseColorFactor":[1,0,0,1],"baseColorTexture":{"index":0}}}`
		textures = fmt.Sprintf(`"textures":[{"source":0}],"images":[{"uri":%q}],`, imageURI)
	}

	return `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [
    {"name": "parent", "translation": [0, 0, 1], "children": [1]},
    {"name": "triangle", "mesh": 0, "scale": [2, 2, 2]}
  ],
  "meshes": [{"name": "tri", "primitives": [{"attributes": {"POSITION": 0}, "indices": 1, "material": 0, "mode": 4}]}],
  "materials": [` + material + `],
  ` + textures + `
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3", "min": [0, 0, 0], "max": [1, 1, 0]},
    {"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36},
    {"buffer": 0, "byteOffset": 36, "byteLength": 6}
  ],
  "buffers": [` + buffer + `]
}`
}

// buildGLB wraps a JSON document and a binary chunk in a GLB container
func buildGLB(t *testing.T, jsonDoc string, bin []byte, version uint32) []byte {
	t.Helper()
	js := []byte(jsonDoc)
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	for len(bin)%4 != 0 {
		bin = append(bin, 0)
	}

	var buf bytes.Buffer
	total := uint32(12 + 8 + len(js) + 8 + len(bin))
	for _, v := range []uint32{0x46546C67, version, total, uint32(len(js)), glbChunkJSON} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.Write(js)
	for _, v := range []uint32{uint32(len(bin)), glbChunkBIN} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.Write(bin)
	return buf.Bytes()
}

func newTestEngine(t *testing.T) *renderer.Engine {
	t.Helper()
	e := renderer.NewEngine(renderer.Options{Samples: 1, Workers: 1, TileSize: 16})
	t.Cleanup(e.Close)
	return e
}

func assertVec3(t *testing.T, expected, actual mgl32.Vec3) {
	t.Helper()
	assert.True(t, expected.ApproxEqualThreshold(actual, 1e-5), "expected %v, got %v", expected, actual)
}

func TestCreateAssetGLTF(t *testing.T) {
	e := newTestEngine(t)
	loader := NewLoader(e)

	a, err := loader.CreateAsset([]byte(triangleGLTF(dataURI("application/octet-stream", triangleBuffer(t)), "")))
	require.NoError(t, err)
	assert.Equal(t, FormatGLTF, a.Format())
	assert.Len(t, a.Entities(), 3)
	require.Len(t, a.RenderableEntities(), 1)
	assert.False(t, a.ResourcesLoaded())

	// Accessor bounds through the node transforms
	box := a.BoundingBox()
	assertVec3(t, mgl32.Vec3{0, 0, 1}, box.Min)
	assertVec3(t, mgl32.Vec3{2, 2, 1}, box.Max)

	tri := a.RenderableEntities()[0]
	world := e.TransformManager().WorldTransform(tri)
	assertVec3(t, mgl32.Vec3{2, 2, 1}, mgl32.TransformCoordinate(mgl32.Vec3{1, 1, 0}, world))
	assert.Equal(t, 0, e.RenderableManager().PrimitiveCount(tri))

	rl := NewResourceLoader(e, t.TempDir())
	require.NoError(t, rl.LoadResources(a))
	assert.True(t, a.ResourcesLoaded())
	assert.ErrorIs(t, rl.LoadResources(a), ErrResourcesLoaded)

	require.Equal(t, 1, e.RenderableManager().PrimitiveCount(tri))
	mi, ok := e.RenderableManager().MaterialInstanceAt(tri, 0).(*renderer.MaterialInstance)
	require.True(t, ok)
	assert.Equal(t, "lit_double_sided", mi.Material().Name())
	assert.Equal(t, mgl32.Vec4{1, 0, 0, 1}, mi.BaseColor())
	assert.Len(t, a.MaterialInstances(), 1)

	worldBox := e.RenderableManager().Bounds(tri)
	assertVec3(t, mgl32.Vec3{0, 0, 1}, worldBox.Min)
	assertVec3(t, mgl32.Vec3{2, 2, 1}, worldBox.Max)

	root := a.Root()
	loader.DestroyAsset(a)
	assert.False(t, e.IsAlive(root))
	assert.False(t, e.IsAlive(tri))
}

func TestCreateAssetGLB(t *testing.T) {
	e := newTestEngine(t)

	data := buildGLB(t, triangleGLTF("", ""), triangleBuffer(t), 2)
	assert.Equal(t, FormatGLB, DetectFormat(data))

	a, err := NewLoader(e).CreateAsset(data)
	require.NoError(t, err)
	assert.Equal(t, FormatGLB, a.Format())

	require.NoError(t, NewResourceLoader(e, "").LoadResources(a))
	assert.Equal(t, 1, e.RenderableManager().PrimitiveCount(a.RenderableEntities()[0]))
}

func TestCreateAssetGLBErrors(t *testing.T) {
	loader := NewLoader(newTestEngine(t))

	_, err := loader.CreateAsset(buildGLB(t, triangleGLTF("", ""), triangleBuffer(t), 1))
	assert.ErrorContains(t, err, "version")

	truncated := buildGLB(t, triangleGLTF("", ""), triangleBuffer(t), 2)
	_, err = loader.CreateAsset(truncated[:len(truncated)-8])
	assert.Error(t, err)

	_, err = loader.CreateAsset([]byte("glTF"))
	assert.Error(t, err)
}

func TestLoadResourcesExternalBuffer(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tri mesh.bin"), triangleBuffer(t), 0o644))

	a, err := NewLoader(e).CreateAsset([]byte(triangleGLTF("tri%20mesh.bin", "")))
	require.NoError(t, err)
	require.NoError(t, NewResourceLoader(e, dir).LoadResources(a))
	assert.Equal(t, 1, e.RenderableManager().PrimitiveCount(a.RenderableEntities()[0]))

	missing, err := NewLoader(e).CreateAsset([]byte(triangleGLTF("missing.bin", "")))
	require.NoError(t, err)
	assert.ErrorIs(t, NewResourceLoader(e, dir).LoadResources(missing), os.ErrNotExist)

	short, err := NewLoader(e).CreateAsset([]byte(triangleGLTF(dataURI("application/octet-stream", []byte{1, 2, 3}), "")))
	require.NoError(t, err)
	assert.Error(t, NewResourceLoader(e, dir).LoadResources(short))
}

func TestLoadResourcesTextures(t *testing.T) {
	e := newTestEngine(t)
	doc := triangleGLTF(dataURI("application/octet-stream", triangleBuffer(t)), dataURI(MimePNG, pngBytes(t)))

	a, err := NewLoader(e).CreateAsset([]byte(doc))
	require.NoError(t, err)
	err = NewResourceLoader(e, "").LoadResources(a)
	assert.ErrorContains(t, err, "no texture provider")

	a, err = NewLoader(e).CreateAsset([]byte(doc))
	require.NoError(t, err)
	rl := NewResourceLoader(e, "")
	rl.AddTextureProvider(MimePNG, StdTextureProvider{})
	require.NoError(t, rl.LoadResources(a))

	mi := e.RenderableManager().MaterialInstanceAt(a.RenderableEntities()[0], 0)
	require.NotNil(t, mi)
	assert.Equal(t, "lit_textured_double_sided", mi.Material().Name())
}

func TestStdTextureProvider(t *testing.T) {
	img, err := StdTextureProvider{}.DecodeTexture(pngBytes(t), MimePNG)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, 2, img.Height)
	r, g, b := img.RGB(1, 1)
	assert.InDelta(t, 1, r, 1e-5)
	assert.InDelta(t, 1, g, 1e-5)
	assert.InDelta(t, 1, b, 1e-5)

	_, err = StdTextureProvider{}.DecodeTexture([]byte("not an image"), MimePNG)
	assert.Error(t, err)
}

func TestCreateAssetPLY(t *testing.T) {
	e := newTestEngine(t)
	a, err := NewLoader(e).CreateAsset(buildBinaryPLY(t, binary.LittleEndian, true, true))
	require.NoError(t, err)

	assert.Equal(t, FormatPLY, a.Format())
	assert.True(t, a.ResourcesLoaded())
	require.Len(t, a.RenderableEntities(), 1)
	assert.Equal(t, 1, e.RenderableManager().PrimitiveCount(a.RenderableEntities()[0]))
	assertVec3(t, mgl32.Vec3{0, 0, 0}, a.BoundingBox().Min)
	assertVec3(t, mgl32.Vec3{1, 1, 0}, a.BoundingBox().Max)

	assert.NoError(t, NewResourceLoader(e, "").LoadResources(a))
}

func TestCreateAssetErrors(t *testing.T) {
	loader := NewLoader(newTestEngine(t))

	_, err := loader.CreateAsset(nil)
	assert.ErrorIs(t, err, ErrEmptyAsset)

	_, err = loader.CreateAsset([]byte("GIF89a not a scene"))
	assert.ErrorIs(t, err, ErrUnknownAssetFormat)

	_, err = loader.CreateAsset([]byte("{ not json"))
	assert.Error(t, err)

	_, err = loader.CreateAsset([]byte(`{"asset":{"version":"2.0"},"nodes":[{"mesh":3}]}`))
	assert.ErrorContains(t, err, "missing mesh")

	_, err = loader.CreateAsset([]byte("ply\nformat ascii 1.0\nelement vertex 1\n"))
	assert.Error(t, err)
}

func TestSceneRootsWithoutScenes(t *testing.T) {
	e := newTestEngine(t)
	doc := `{"asset":{"version":"2.0"},"nodes":[{"children":[1]},{},{"translation":[1,0,0]}]}`
	a, err := NewLoader(e).CreateAsset([]byte(doc))
	require.NoError(t, err)

	// Nodes 0 and 2 are roots, node 1 hangs off node 0
	assert.Len(t, a.Entities(), 4)
	assert.Empty(t, a.RenderableEntities())
	assert.True(t, a.BoundingBox().IsEmpty())
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected Format
	}{
		{"glb", "glTF\x02\x00\x00\x00", FormatGLB},
		{"gltf", `{"asset":{}}`, FormatGLTF},
		{"gltf with bom", "\xEF\xBB\xBF \n{}", FormatGLTF},
		{"ply", "ply\nformat ascii 1.0\n", FormatPLY},
		{"ply crlf", "ply\r\nformat ascii 1.0\r\n", FormatPLY},
		{"plywood", "plywood", FormatUnknown},
		{"empty", "", FormatUnknown},
		{"png", "\x89PNG\r\n\x1a\n", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat([]byte(tt.data)))
		})
	}
	assert.Equal(t, "glb", FormatGLB.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
}

func TestURIHelpers(t *testing.T) {
	data, err := decodeDataURI(dataURI("application/octet-stream", []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = decodeDataURI("data:text/plain,hello")
	assert.Error(t, err)

	assert.Equal(t, MimePNG, uriMIME("data:image/png;base64,AAAA"))
	assert.Equal(t, MimeJPEG, uriMIME("textures/albedo.JPG"))
	assert.Equal(t, MimeWebP, uriMIME("a.webp"))
	assert.Equal(t, "", uriMIME("a.ktx2"))

	rl := NewResourceLoader(nil, t.TempDir())
	_, err = rl.readURI("/etc/passwd")
	assert.Error(t, err)
	_, err = rl.readURI("http://example.com/a.bin")
	assert.Error(t, err)
}
