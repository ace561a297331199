// Package chunker splits PLY point-cloud files into prioritized chunks
// for progressive loading.
//
// The radial strategy assigns vertices to chunks with a feathered,
// distance-weighted probability so the whole form appears early and
// gains detail as later chunks stream in. The sequential strategy
// simply slices the file in input order.
//
// Chunks and the manifest are written through a gocloud.dev blob
// bucket, so output can target a local directory (file://), memory
// (mem://, in tests), or object storage.
package chunker
