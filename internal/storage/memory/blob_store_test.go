package memory

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	blobs := NewBlobStore()
	payload := []byte(`{"animals":[]}`)
	uri, err := blobs.PutObject(context.Background(), "sync/petfinder/page-1.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://sync/petfinder/page-1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'
	stored, contentType, ok := blobs.Object("sync/petfinder/page-1.json")
	if !ok {
		t.Fatal("expected object to exist")
	}
	if string(stored) != `{"animals":[]}` {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type %q", contentType)
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewBlobStore().PutObject(context.Background(), " ", "", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestBlobStorePathsSorted(t *testing.T) {
	t.Parallel()

	blobs := NewBlobStore()
	for _, p := range []string{"b", "a", "c"} {
		if _, err := blobs.PutObject(context.Background(), p, "", strings.NewReader(p)); err != nil {
			t.Fatal(err)
		}
	}
	if got := strings.Join(blobs.Paths(), ","); got != "a,b,c" {
		t.Fatalf("unexpected paths %s", got)
	}
}
