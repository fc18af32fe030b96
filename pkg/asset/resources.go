package asset

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/df07/go-turntable-renderer/pkg/imagedec"
	"github.com/h2non/filetype"
	"github.com/qmuntal/gltf"
	_ "golang.org/x/image/webp"
)

// MIME types served by StdTextureProvider
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWebP = "image/webp"
)

// TextureProvider decodes encoded texture bytes into a linear RGBA image
type TextureProvider interface {
	DecodeTexture(data []byte, mime string) (imagedec.LinearImage, error)
}

// StdTextureProvider decodes PNG, JPEG and WebP color textures, which are
// stored in sRGB
type StdTextureProvider struct{}

// DecodeTexture implements TextureProvider
func (StdTextureProvider) DecodeTexture(data []byte, mime string) (imagedec.LinearImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return imagedec.LinearImage{}, fmt.Errorf("decode %s: %w", mime, err)
	}
	linear := imagedec.FromImage(img, imagedec.ColorSpaceSRGB)
	if linear.Empty() {
		return imagedec.LinearImage{}, fmt.Errorf("decode %s: empty %s image", mime, format)
	}
	return linear, nil
}

// ResourceLoader resolves the external buffers and textures of an asset and
// attaches its geometry and materials
type ResourceLoader struct {
	engine    engine.Engine
	basePath  string
	providers map[string]TextureProvider
}

// NewResourceLoader creates a loader that resolves relative URIs against basePath
func NewResourceLoader(e engine.Engine, basePath string) *ResourceLoader {
	return &ResourceLoader{
		engine:    e,
		basePath:  basePath,
		providers: make(map[string]TextureProvider),
	}
}

// AddTextureProvider registers p for textures of the given MIME type
func (rl *ResourceLoader) AddTextureProvider(mime string, p TextureProvider) {
	rl.providers[mime] = p
}

// BasePath returns the directory relative URIs are resolved against
func (rl *ResourceLoader) BasePath() string { return rl.basePath }

// LoadResources loads buffers and textures and attaches geometry to the
// asset's renderables. It is a no-op for assets whose geometry is inline.
func (rl *ResourceLoader) LoadResources(a *Asset) error {
	if a.loaded {
		if a.doc == nil {
			return nil
		}
		return ErrResourcesLoaded
	}

	start := time.Now()
	for i, buf := range a.doc.Buffers {
		if buf.Data == nil {
			data, err := rl.readURI(buf.URI)
			if err != nil {
				return fmt.Errorf("asset: buffer %d: %w", i, err)
			}
			buf.Data = data
		}
		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("asset: buffer %d has %d bytes, declared %d", i, len(buf.Data), buf.ByteLength)
		}
	}

	if err := rl.attachGeometry(a); err != nil {
		return fmt.Errorf("asset: %w", err)
	}
	a.loaded = true

	slog.Info("asset: resources loaded",
		"buffers", len(a.doc.Buffers),
		"materials", len(a.instances),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// loadTexture decodes the image behind a glTF texture through the provider
// registered for its MIME type
func (rl *ResourceLoader) loadTexture(doc *gltf.Document, idx int) (imagedec.LinearImage, error) {
	if idx < 0 || idx >= len(doc.Textures) {
		return imagedec.LinearImage{}, fmt.Errorf("texture %d out of range", idx)
	}
	tex := doc.Textures[idx]
	if tex.Source == nil || *tex.Source < 0 || *tex.Source >= len(doc.Images) {
		return imagedec.LinearImage{}, fmt.Errorf("texture %d has no image", idx)
	}
	img := doc.Images[*tex.Source]

	var data []byte
	mime := img.MimeType
	switch {
	case img.BufferView != nil:
		bv, err := bufferViewData(doc, *img.BufferView)
		if err != nil {
			return imagedec.LinearImage{}, fmt.Errorf("image %d: %w", *tex.Source, err)
		}
		data = bv
	case img.URI != "":
		d, err := rl.readURI(img.URI)
		if err != nil {
			return imagedec.LinearImage{}, fmt.Errorf("image %d: %w", *tex.Source, err)
		}
		data = d
		if mime == "" {
			mime = uriMIME(img.URI)
		}
	default:
		return imagedec.LinearImage{}, fmt.Errorf("image %d has no source", *tex.Source)
	}
	if mime == "" {
		if kind, err := filetype.Image(data); err == nil {
			mime = kind.MIME.Value
		}
	}

	provider, ok := rl.providers[mime]
	if !ok {
		return imagedec.LinearImage{}, fmt.Errorf("no texture provider for %q", mime)
	}
	linear, err := provider.DecodeTexture(data, mime)
	if err != nil {
		return imagedec.LinearImage{}, fmt.Errorf("image %d: %w", *tex.Source, err)
	}
	return linear, nil
}

func bufferViewData(doc *gltf.Document, idx int) ([]byte, error) {
	if idx < 0 || idx >= len(doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d out of range", idx)
	}
	bv := doc.BufferViews[idx]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer view %d references missing buffer %d", idx, bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("buffer view %d [%d:%d] exceeds buffer of %d bytes", idx, bv.ByteOffset, end, len(data))
	}
	return data[bv.ByteOffset:end], nil
}

// readURI returns the bytes behind a data URI or a file relative to the base path
func (rl *ResourceLoader) readURI(uri string) ([]byte, error) {
	if uri == "" {
		return nil, fmt.Errorf("missing uri")
	}
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}

	rel, err := url.PathUnescape(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if path.IsAbs(rel) || strings.Contains(rel, "://") {
		return nil, fmt.Errorf("uri %q is not relative", uri)
	}
	data, err := os.ReadFile(filepath.Join(rl.basePath, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// decodeDataURI decodes a base64 data URI
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("data uri: %w", err)
	}
	return data, nil
}

// uriMIME derives a MIME type from a data URI header or a file extension
func uriMIME(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "data:"); ok {
		mime, _, _ := strings.Cut(rest, ";")
		return mime
	}
	switch strings.ToLower(path.Ext(uri)) {
	case ".png":
		return MimePNG
	case ".jpg", ".jpeg":
		return MimeJPEG
	case ".webp":
		return MimeWebP
	}
	return ""
}
