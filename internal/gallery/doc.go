// Package gallery reconciles the gallery manifest against the PNG
// files actually present in a gallery bucket: new images are added,
// missing ones are dropped, and stale random-rotation candidates are
// pruned.
package gallery
