// Package manifest defines the chunk manifest produced by the offline
// chunking pipeline and the fetcher that retrieves it over HTTP.
//
// A manifest describes how one point-cloud dataset is split into
// independently downloadable chunk files, each carrying a priority that
// governs both download scheduling and delivery order.
//
// Fetching distinguishes three outcomes: the manifest exists and
// parses (chunked variant available), the manifest does not exist
// (callers fall back to a monolithic load), and the manifest exists but
// is malformed (a real error for this attempt).
package manifest
