package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ManifestKey is the bucket key of the gallery manifest.
const ManifestKey = "manifest.json"

// Manifest lists the gallery images and the subset eligible for
// random rotation on the landing page.
type Manifest struct {
	Version          string   `json:"version"`
	Generated        string   `json:"generated"`
	Files            []string `json:"files"`
	RandomCandidates []string `json:"randomCandidates"`
}

// Changes summarizes one reconciliation pass.
type Changes struct {
	Added             []string
	Removed           []string
	CandidatesRemoved []string
}

// Any reports whether the pass changed the manifest.
func (c Changes) Any() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.CandidatesRemoved) > 0
}

// Update reconciles the manifest in bucket against the PNG objects the
// bucket actually holds. Images not yet listed are added, listed
// images that no longer exist are removed, and random candidates whose
// image is gone are pruned. Candidates are never added automatically;
// that list is curated by hand. The manifest is rewritten only when
// something changed.
func Update(ctx context.Context, bucket *blob.Bucket) (Changes, error) {
	actual, err := listPNGs(ctx, bucket)
	if err != nil {
		return Changes{}, err
	}

	m, err := loadManifest(ctx, bucket)
	if err != nil {
		return Changes{}, err
	}
	if m == nil {
		m = &Manifest{Version: "1.1"}
	}

	actualSet := make(map[string]bool, len(actual))
	for _, f := range actual {
		actualSet[f] = true
	}
	listed := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		listed[f] = true
	}

	var changes Changes
	for _, f := range actual {
		if !listed[f] {
			changes.Added = append(changes.Added, f)
		}
	}
	for _, f := range m.Files {
		if !actualSet[f] {
			changes.Removed = append(changes.Removed, f)
		}
	}

	var candidates []string
	for _, f := range m.RandomCandidates {
		if actualSet[f] {
			candidates = append(candidates, f)
		} else {
			changes.CandidatesRemoved = append(changes.CandidatesRemoved, f)
		}
	}

	if !changes.Any() {
		return changes, nil
	}

	m.Files = actual
	sort.Strings(candidates)
	m.RandomCandidates = candidates
	m.Generated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return changes, fmt.Errorf("gallery: marshal manifest: %w", err)
	}
	if err := bucket.WriteAll(ctx, ManifestKey, data, nil); err != nil {
		return changes, fmt.Errorf("gallery: write manifest: %w", err)
	}
	return changes, nil
}

// listPNGs returns the sorted PNG object keys at the bucket root.
func listPNGs(ctx context.Context, bucket *blob.Bucket) ([]string, error) {
	var files []string
	iter := bucket.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gallery: list bucket: %w", err)
		}
		if obj.IsDir {
			continue
		}
		if strings.HasSuffix(strings.ToLower(obj.Key), ".png") {
			files = append(files, obj.Key)
		}
	}
	sort.Strings(files)
	return files, nil
}

// loadManifest returns nil without error when no manifest exists yet.
func loadManifest(ctx context.Context, bucket *blob.Bucket) (*Manifest, error) {
	data, err := bucket.ReadAll(ctx, ManifestKey)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("gallery: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("gallery: parse manifest: %w", err)
	}
	return &m, nil
}
