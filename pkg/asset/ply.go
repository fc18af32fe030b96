package asset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/df07/go-turntable-renderer/pkg/codec"
	"github.com/go-gl/mathgl/mgl32"
)

// plyHeader represents the parsed header information from a PLY file
type plyHeader struct {
	Format      string // "binary_little_endian", "binary_big_endian", or "ascii"
	Version     string // Usually "1.0"
	Elements    []plyElement
	VertexCount int
	FaceCount   int
}

// plyElement is one element declaration and its properties, in file order
type plyElement struct {
	Name  string
	Count int
	Props []plyProperty
}

// plyProperty represents a property definition in the PLY header
type plyProperty struct {
	Name     string
	Type     string
	IsList   bool
	ListType string // For list properties, the type of the count
	DataType string // For list properties, the type of the data
}

// plyMesh contains the triangle data loaded from a PLY file
type plyMesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3 // nil if not present
	Colors    []mgl32.Vec4 // normalized to [0,1], nil if not present
	Indices   []uint32     // Triangle indices (3 per triangle)
}

// parsePLY parses an in-memory PLY file. Polygons with more than three
// vertices are triangulated as fans.
func parsePLY(data []byte) (*plyMesh, error) {
	br := bufio.NewReader(bytes.NewReader(data))

	header, err := parsePLYHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PLY header: %w", err)
	}

	var values plyValueReader
	switch header.Format {
	case "ascii":
		values = &asciiValues{scanner: newWordScanner(br)}
	case "binary_little_endian":
		values = &binaryValues{r: br, order: binary.LittleEndian}
	case "binary_big_endian":
		values = &binaryValues{r: br, order: binary.BigEndian}
	default:
		return nil, fmt.Errorf("unsupported PLY format: %s", header.Format)
	}

	mesh := &plyMesh{
		Positions: make([]mgl32.Vec3, 0, header.VertexCount),
		Indices:   make([]uint32, 0, header.FaceCount*3), // Assuming triangular faces
	}

	for _, el := range header.Elements {
		for i := 0; i < el.Count; i++ {
			switch el.Name {
			case "vertex":
				err = mesh.readVertex(values, el.Props)
			case "face":
				err = mesh.readFace(values, el.Props, header.VertexCount)
			default:
				err = skipElement(values, el.Props)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read %s %d: %w", el.Name, i, err)
			}
		}
	}
	return mesh, nil
}

// parsePLYHeader parses the PLY header, leaving br positioned at the first data byte
func parsePLYHeader(br *bufio.Reader) (*plyHeader, error) {
	header := &plyHeader{}

	magic, err := br.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return nil, fmt.Errorf("missing ply magic")
	}

	for {
		raw, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("header is not terminated: %w", err)
		}
		line := strings.TrimSpace(raw)
		if line == "end_header" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "format":
			if len(parts) >= 3 {
				header.Format = parts[1]
				header.Version = parts[2]
			}
		case "comment", "obj_info":
			// Ignore comments
		case "element":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid element line: %q", line)
			}
			count, err := strconv.Atoi(parts[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("invalid element count: %s", parts[2])
			}
			header.Elements = append(header.Elements, plyElement{Name: parts[1], Count: count})
			switch parts[1] {
			case "vertex":
				header.VertexCount = count
			case "face":
				header.FaceCount = count
			}
		case "property":
			if len(header.Elements) == 0 {
				return nil, fmt.Errorf("property before any element")
			}
			prop, err := parsePLYProperty(parts[1:])
			if err != nil {
				return nil, fmt.Errorf("failed to parse property: %w", err)
			}
			el := &header.Elements[len(header.Elements)-1]
			el.Props = append(el.Props, prop)
		default:
			return nil, fmt.Errorf("unknown header keyword %q", parts[0])
		}
	}

	if header.Format == "" {
		return nil, fmt.Errorf("missing format line")
	}
	return header, nil
}

// parsePLYProperty parses a property line from the PLY header
func parsePLYProperty(parts []string) (plyProperty, error) {
	if len(parts) < 2 {
		return plyProperty{}, fmt.Errorf("invalid property definition")
	}

	if parts[0] == "list" {
		if len(parts) < 4 {
			return plyProperty{}, fmt.Errorf("invalid list property definition")
		}
		return plyProperty{IsList: true, ListType: parts[1], DataType: parts[2], Name: parts[3]}, nil
	}
	if plyTypeSize(parts[0]) == 0 {
		return plyProperty{}, fmt.Errorf("unsupported data type: %s", parts[0])
	}
	return plyProperty{Type: parts[0], Name: parts[1]}, nil
}

// plyTypeSize returns the size in bytes of a PLY data type, 0 if unknown
func plyTypeSize(dataType string) int {
	switch dataType {
	case "float", "float32", "int", "int32", "uint", "uint32":
		return 4
	case "double", "float64":
		return 8
	case "short", "int16", "ushort", "uint16":
		return 2
	case "char", "int8", "uchar", "uint8":
		return 1
	default:
		return 0
	}
}

func (m *plyMesh) readVertex(values plyValueReader, props []plyProperty) error {
	var pos, normal mgl32.Vec3
	color := mgl32.Vec4{1, 1, 1, 1}
	hasNormal, hasColor := false, false

	for _, prop := range props {
		if prop.IsList {
			if err := skipProperty(values, prop); err != nil {
				return err
			}
			continue
		}

		switch prop.Name {
		case "red", "green", "blue", "alpha", "r", "g", "b", "a":
			v, err := values.normalized(prop.Type)
			if err != nil {
				return err
			}
			hasColor = true
			color[colorChannel(prop.Name)] = v
			continue
		}

		v, err := values.scalar(prop.Type)
		if err != nil {
			return err
		}
		switch prop.Name {
		case "x":
			pos[0] = float32(v)
		case "y":
			pos[1] = float32(v)
		case "z":
			pos[2] = float32(v)
		case "nx":
			normal[0], hasNormal = float32(v), true
		case "ny":
			normal[1], hasNormal = float32(v), true
		case "nz":
			normal[2], hasNormal = float32(v), true
		}
	}

	index := len(m.Positions)
	m.Positions = append(m.Positions, pos)
	if hasNormal {
		if m.Normals == nil {
			m.Normals = make([]mgl32.Vec3, index, cap(m.Positions))
		}
		m.Normals = append(m.Normals, normal)
	}
	if hasColor {
		if m.Colors == nil {
			m.Colors = make([]mgl32.Vec4, index, cap(m.Positions))
		}
		m.Colors = append(m.Colors, color)
	}
	return nil
}

func colorChannel(name string) int {
	switch name {
	case "red", "r":
		return 0
	case "green", "g":
		return 1
	case "blue", "b":
		return 2
	default:
		return 3
	}
}

func (m *plyMesh) readFace(values plyValueReader, props []plyProperty, vertexCount int) error {
	for _, prop := range props {
		if !prop.IsList || (prop.Name != "vertex_indices" && prop.Name != "vertex_index") {
			if err := skipProperty(values, prop); err != nil {
				return err
			}
			continue
		}

		count, err := values.scalar(prop.ListType)
		if err != nil {
			return err
		}
		if count < 3 {
			return fmt.Errorf("face has %v vertices", count)
		}

		indices := make([]uint32, int(count))
		for i := range indices {
			v, err := values.scalar(prop.DataType)
			if err != nil {
				return err
			}
			if v < 0 || int(v) >= vertexCount {
				return fmt.Errorf("vertex index %v out of range for %d vertices", v, vertexCount)
			}
			indices[i] = uint32(v)
		}
		for i := 1; i+1 < len(indices); i++ {
			m.Indices = append(m.Indices, indices[0], indices[i], indices[i+1])
		}
	}
	return nil
}

func skipElement(values plyValueReader, props []plyProperty) error {
	for _, prop := range props {
		if err := skipProperty(values, prop); err != nil {
			return err
		}
	}
	return nil
}

// skipProperty reads and discards one property value
func skipProperty(values plyValueReader, prop plyProperty) error {
	if !prop.IsList {
		_, err := values.scalar(prop.Type)
		return err
	}
	count, err := values.scalar(prop.ListType)
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := values.scalar(prop.DataType); err != nil {
			return err
		}
	}
	return nil
}

// plyValueReader reads typed property values in either encoding
type plyValueReader interface {
	scalar(dataType string) (float64, error)
	// normalized reads a color channel scaled to [0,1]
	normalized(dataType string) (float32, error)
}

type binaryValues struct {
	r     *bufio.Reader
	order binary.ByteOrder
}

func (b *binaryValues) scalar(dataType string) (float64, error) {
	switch dataType {
	case "float", "float32":
		v, err := codec.ReadFloat32(b.r, b.order)
		return float64(v), err
	case "double", "float64":
		return codec.ReadFloat64(b.r, b.order)
	case "uchar", "uint8":
		v, err := b.r.ReadByte()
		return float64(v), err
	case "char", "int8":
		v, err := b.r.ReadByte()
		return float64(int8(v)), err
	case "ushort", "uint16":
		v, err := codec.ReadUint16(b.r, b.order)
		return float64(v), err
	case "short", "int16":
		v, err := codec.ReadUint16(b.r, b.order)
		return float64(int16(v)), err
	case "uint", "uint32":
		v, err := codec.ReadUint32(b.r, b.order)
		return float64(v), err
	case "int", "int32":
		v, err := codec.ReadUint32(b.r, b.order)
		return float64(int32(v)), err
	default:
		return 0, fmt.Errorf("unsupported data type: %s", dataType)
	}
}

func (b *binaryValues) normalized(dataType string) (float32, error) {
	switch dataType {
	case "ushort", "uint16":
		return codec.ReadNormalizedU16(b.r, b.order)
	case "float", "float32", "double", "float64":
		v, err := b.scalar(dataType)
		return float32(v), err
	default:
		v, err := b.scalar(dataType)
		return float32(v / 255), err
	}
}

type asciiValues struct {
	scanner *bufio.Scanner
}

func newWordScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Split(bufio.ScanWords)
	return s
}

func (a *asciiValues) scalar(dataType string) (float64, error) {
	if !a.scanner.Scan() {
		if err := a.scanner.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	v, err := strconv.ParseFloat(a.scanner.Text(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", dataType, a.scanner.Text())
	}
	return v, nil
}

func (a *asciiValues) normalized(dataType string) (float32, error) {
	v, err := a.scalar(dataType)
	if err != nil {
		return 0, err
	}
	switch dataType {
	case "ushort", "uint16":
		return float32(v / 65535), nil
	case "float", "float32", "double", "float64":
		return float32(v), nil
	default:
		return float32(v / 255), nil
	}
}
