// Package ply implements a codec for PLY point-cloud files.
//
// Only vertex data is handled: positions (x, y, z) and optional
// per-vertex color (red, green, blue). Faces and other elements are not
// supported. Both ascii and binary_little_endian formats can be decoded;
// encoding always produces binary_little_endian with the compact
// float32 position + uint8 color layout used by the chunk pipeline.
//
// # Usage
//
//	geom, err := ply.Decode(r)
//	// geom.Positions, geom.Colors, geom.VertexCount()
//
//	var buf bytes.Buffer
//	err = ply.Encode(&buf, geom)
package ply
