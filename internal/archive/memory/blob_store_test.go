package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}

	stored, ok := store.Get("path/page.html")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy, got %q ok=%v", stored, ok)
	}
	stored[0] = 'C'
	again, _ := store.Get("path/page.html")
	if string(again) != "content" {
		t.Fatalf("expected Get() to return a copy, got %q", again)
	}
}
