package gallery

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

func putPNGs(t *testing.T, bucket *blob.Bucket, names ...string) {
	t.Helper()
	ctx := context.Background()
	for _, name := range names {
		if err := bucket.WriteAll(ctx, name, []byte("png"), nil); err != nil {
			t.Fatalf("WriteAll(%s) error = %v", name, err)
		}
	}
}

func putManifest(t *testing.T, bucket *blob.Bucket, m Manifest) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := bucket.WriteAll(context.Background(), ManifestKey, data, nil); err != nil {
		t.Fatalf("WriteAll(manifest) error = %v", err)
	}
}

func readManifest(t *testing.T, bucket *blob.Bucket) Manifest {
	t.Helper()
	data, err := bucket.ReadAll(context.Background(), ManifestKey)
	if err != nil {
		t.Fatalf("ReadAll(manifest) error = %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return m
}

func TestUpdateCreatesManifest(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	putPNGs(t, bucket, "b.png", "a.png", "notes.txt")

	changes, err := Update(context.Background(), bucket)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !changes.Any() {
		t.Fatal("expected changes on first run")
	}
	if got, want := changes.Added, []string{"a.png", "b.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Added = %v, want %v", got, want)
	}

	m := readManifest(t, bucket)
	if got, want := m.Files, []string{"a.png", "b.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Files = %v, want %v", got, want)
	}
	if m.Version != "1.1" {
		t.Errorf("Version = %q, want 1.1", m.Version)
	}
	if m.Generated == "" {
		t.Error("Generated is empty")
	}
}

func TestUpdateAddsAndRemoves(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	putPNGs(t, bucket, "keep.png", "new.png")
	putManifest(t, bucket, Manifest{
		Version: "1.1",
		Files:   []string{"gone.png", "keep.png"},
	})

	changes, err := Update(context.Background(), bucket)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got, want := changes.Added, []string{"new.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Added = %v, want %v", got, want)
	}
	if got, want := changes.Removed, []string{"gone.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Removed = %v, want %v", got, want)
	}

	m := readManifest(t, bucket)
	if got, want := m.Files, []string{"keep.png", "new.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Files = %v, want %v", got, want)
	}
}

func TestUpdatePrunesCandidates(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	putPNGs(t, bucket, "a.png", "b.png")
	putManifest(t, bucket, Manifest{
		Version:          "1.1",
		Files:            []string{"a.png", "b.png"},
		RandomCandidates: []string{"b.png", "gone.png"},
	})

	changes, err := Update(context.Background(), bucket)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got, want := changes.CandidatesRemoved, []string{"gone.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("CandidatesRemoved = %v, want %v", got, want)
	}
	// Candidates are pruned, never added.
	m := readManifest(t, bucket)
	if got, want := m.RandomCandidates, []string{"b.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("RandomCandidates = %v, want %v", got, want)
	}
}

func TestUpdateNoChanges(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	putPNGs(t, bucket, "a.png")
	putManifest(t, bucket, Manifest{
		Version:   "1.1",
		Generated: "2026-01-01T00:00:00Z",
		Files:     []string{"a.png"},
	})

	changes, err := Update(context.Background(), bucket)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if changes.Any() {
		t.Fatalf("unexpected changes: %+v", changes)
	}
	// Untouched manifest keeps its original timestamp.
	if m := readManifest(t, bucket); m.Generated != "2026-01-01T00:00:00Z" {
		t.Errorf("Generated = %q, manifest was rewritten", m.Generated)
	}
}
