package ply

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Common errors.
var (
	ErrNotPLY            = errors.New("ply: not a PLY file")
	ErrUnsupportedFormat = errors.New("ply: unsupported format")
	ErrTruncated         = errors.New("ply: truncated vertex data")
)

// Format identifies the PLY storage format.
type Format int

const (
	// FormatASCII is the text format, one vertex per line.
	FormatASCII Format = iota
	// FormatBinaryLE is the binary little-endian format.
	FormatBinaryLE
)

// Vec3 is a point in 3D space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BoundingBox is an axis-aligned bounding box.
type BoundingBox struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Property describes a single vertex property from the header.
type Property struct {
	Name string
	Type string
}

// Header holds the parsed PLY header.
type Header struct {
	Format      Format
	VertexCount int
	Properties  []Property
}

// Geometry holds decoded vertex data. Positions are packed xyz triplets.
// Colors are packed rgb triplets and may be nil when the source file has
// no color properties.
type Geometry struct {
	Positions []float32
	Colors    []uint8
}

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// HasColor reports whether per-vertex color is present.
func (g *Geometry) HasColor() bool {
	return len(g.Colors) > 0
}

// Position returns the i-th vertex position.
func (g *Geometry) Position(i int) Vec3 {
	return Vec3{
		X: float64(g.Positions[i*3]),
		Y: float64(g.Positions[i*3+1]),
		Z: float64(g.Positions[i*3+2]),
	}
}

// Bounds computes the axis-aligned bounding box of all vertices.
// An empty geometry yields a zero box.
func (g *Geometry) Bounds() BoundingBox {
	n := g.VertexCount()
	if n == 0 {
		return BoundingBox{}
	}

	box := BoundingBox{
		Min: Vec3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: Vec3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for i := 0; i < n; i++ {
		p := g.Position(i)
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Min.Z = math.Min(box.Min.Z, p.Z)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
		box.Max.Z = math.Max(box.Max.Z, p.Z)
	}
	return box
}

// propertySizes maps PLY scalar type names to their byte size in the
// binary format.
var propertySizes = map[string]int{
	"char": 1, "int8": 1,
	"uchar": 1, "uint8": 1,
	"short": 2, "int16": 2,
	"ushort": 2, "uint16": 2,
	"int": 4, "int32": 4,
	"uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// DecodeHeader reads and parses the PLY header from r.
// After it returns, r is positioned at the first byte of vertex data.
func DecodeHeader(r *bufio.Reader) (*Header, error) {
	magic, err := readHeaderLine(r)
	if err != nil {
		return nil, err
	}
	if magic != "ply" {
		return nil, ErrNotPLY
	}

	h := &Header{VertexCount: -1}
	inVertexElement := false

	for {
		line, err := readHeaderLine(r)
		if err != nil {
			return nil, err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, fmt.Errorf("ply: malformed format line %q", line)
			}
			switch fields[1] {
			case "ascii":
				h.Format = FormatASCII
			case "binary_little_endian":
				h.Format = FormatBinaryLE
			default:
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fields[1])
			}
		case "element":
			if len(fields) < 3 {
				return nil, fmt.Errorf("ply: malformed element line %q", line)
			}
			if fields[1] == "vertex" {
				n, err := strconv.Atoi(fields[2])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("ply: bad vertex count %q", fields[2])
				}
				h.VertexCount = n
				inVertexElement = true
			} else {
				inVertexElement = false
			}
		case "property":
			if !inVertexElement {
				continue
			}
			if len(fields) < 3 {
				return nil, fmt.Errorf("ply: malformed property line %q", line)
			}
			if fields[1] == "list" {
				return nil, fmt.Errorf("%w: list properties", ErrUnsupportedFormat)
			}
			if _, ok := propertySizes[fields[1]]; !ok {
				return nil, fmt.Errorf("%w: property type %s", ErrUnsupportedFormat, fields[1])
			}
			h.Properties = append(h.Properties, Property{Name: fields[2], Type: fields[1]})
		case "comment", "obj_info":
			// Ignored.
		case "end_header":
			if h.VertexCount < 0 {
				return nil, errors.New("ply: missing vertex element")
			}
			return h, nil
		}
	}
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", fmt.Errorf("ply: unexpected end of header: %w", io.ErrUnexpectedEOF)
		}
		return "", fmt.Errorf("ply: read header: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// vertexLayout locates the position and color properties within a
// vertex record.
type vertexLayout struct {
	stride  int
	posOff  [3]int // byte offsets of x, y, z
	posType [3]string
	colType [3]string
	colOff  [3]int // byte offsets of red, green, blue, -1 when absent
	posIdx  [3]int // field indexes for ascii decoding
	colIdx  [3]int
	hasCol  bool
}

func layoutFor(h *Header) (*vertexLayout, error) {
	l := &vertexLayout{
		posOff: [3]int{-1, -1, -1},
		colOff: [3]int{-1, -1, -1},
		posIdx: [3]int{-1, -1, -1},
		colIdx: [3]int{-1, -1, -1},
	}

	off := 0
	for i, p := range h.Properties {
		size := propertySizes[p.Type]
		switch p.Name {
		case "x":
			l.posOff[0], l.posIdx[0], l.posType[0] = off, i, p.Type
		case "y":
			l.posOff[1], l.posIdx[1], l.posType[1] = off, i, p.Type
		case "z":
			l.posOff[2], l.posIdx[2], l.posType[2] = off, i, p.Type
		case "red", "r":
			l.colOff[0], l.colIdx[0], l.colType[0] = off, i, p.Type
		case "green", "g":
			l.colOff[1], l.colIdx[1], l.colType[1] = off, i, p.Type
		case "blue", "b":
			l.colOff[2], l.colIdx[2], l.colType[2] = off, i, p.Type
		}
		off += size
	}
	l.stride = off

	for axis := 0; axis < 3; axis++ {
		if l.posOff[axis] < 0 {
			return nil, errors.New("ply: vertex element is missing x/y/z properties")
		}
		if t := l.posType[axis]; t != "float" && t != "float32" && t != "double" && t != "float64" {
			return nil, fmt.Errorf("%w: position type %s", ErrUnsupportedFormat, t)
		}
	}
	l.hasCol = l.colOff[0] >= 0 && l.colOff[1] >= 0 && l.colOff[2] >= 0
	if l.hasCol {
		for c := 0; c < 3; c++ {
			if t := l.colType[c]; t != "uchar" && t != "uint8" {
				return nil, fmt.Errorf("%w: color type %s", ErrUnsupportedFormat, t)
			}
		}
	}
	return l, nil
}

// Decode reads a complete PLY file from r and returns its vertex data.
func Decode(r io.Reader) (*Geometry, error) {
	br := bufio.NewReader(r)
	h, err := DecodeHeader(br)
	if err != nil {
		return nil, err
	}
	return DecodeBody(br, h)
}

// DecodeBody reads vertex data for a previously parsed header.
func DecodeBody(br *bufio.Reader, h *Header) (*Geometry, error) {
	layout, err := layoutFor(h)
	if err != nil {
		return nil, err
	}

	g := &Geometry{Positions: make([]float32, 0, h.VertexCount*3)}
	if layout.hasCol {
		g.Colors = make([]uint8, 0, h.VertexCount*3)
	}

	switch h.Format {
	case FormatASCII:
		return decodeASCII(br, h, layout, g)
	case FormatBinaryLE:
		return decodeBinary(br, h, layout, g)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func decodeASCII(br *bufio.Reader, h *Header, layout *vertexLayout, g *Geometry) (*Geometry, error) {
	for i := 0; i < h.VertexCount; i++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("ply: read vertex %d: %w", i, err)
		}
		fields := strings.Fields(line)
		if len(fields) < len(h.Properties) {
			return nil, fmt.Errorf("%w: vertex %d has %d of %d fields", ErrTruncated, i, len(fields), len(h.Properties))
		}

		for axis := 0; axis < 3; axis++ {
			v, err := strconv.ParseFloat(fields[layout.posIdx[axis]], 64)
			if err != nil {
				return nil, fmt.Errorf("ply: vertex %d: %w", i, err)
			}
			g.Positions = append(g.Positions, float32(v))
		}
		if layout.hasCol {
			for c := 0; c < 3; c++ {
				v, err := strconv.ParseUint(fields[layout.colIdx[c]], 10, 8)
				if err != nil {
					return nil, fmt.Errorf("ply: vertex %d: %w", i, err)
				}
				g.Colors = append(g.Colors, uint8(v))
			}
		}
	}
	return g, nil
}

func decodeBinary(br *bufio.Reader, h *Header, layout *vertexLayout, g *Geometry) (*Geometry, error) {
	record := make([]byte, layout.stride)
	for i := 0; i < h.VertexCount; i++ {
		if _, err := io.ReadFull(br, record); err != nil {
			return nil, fmt.Errorf("%w: vertex %d: %v", ErrTruncated, i, err)
		}

		for axis := 0; axis < 3; axis++ {
			off := layout.posOff[axis]
			switch layout.posType[axis] {
			case "double", "float64":
				bits := binary.LittleEndian.Uint64(record[off:])
				g.Positions = append(g.Positions, float32(math.Float64frombits(bits)))
			default:
				bits := binary.LittleEndian.Uint32(record[off:])
				g.Positions = append(g.Positions, math.Float32frombits(bits))
			}
		}
		if layout.hasCol {
			g.Colors = append(g.Colors,
				record[layout.colOff[0]],
				record[layout.colOff[1]],
				record[layout.colOff[2]])
		}
	}
	return g, nil
}
