package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func testStoreBasics(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	info, err := store.Put(ctx, "docs/p1/consent.pdf", strings.NewReader("signed consent"), PutOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"patient": "p1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("signed consent")) {
		t.Fatalf("size = %d", info.Size)
	}

	if _, err := store.Put(ctx, "docs/p1/consent.pdf", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatalf("duplicate put must fail")
	}

	got, rc, err := store.Get(ctx, "docs/p1/consent.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(body) != "signed consent" {
		t.Fatalf("body = %q err = %v", body, err)
	}
	if got.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", got.ContentType)
	}
	if got.Metadata["patient"] != "p1" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}

	head, err := store.Head(ctx, "docs/p1/consent.pdf")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != info.Size {
		t.Fatalf("head size = %d, want %d", head.Size, info.Size)
	}

	if _, err := store.Put(ctx, "docs/p2/referral.pdf", strings.NewReader("referral"), PutOptions{}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	infos, err := store.List(ctx, "docs/p1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "docs/p1/consent.pdf" {
		t.Fatalf("unexpected listing: %+v", infos)
	}

	ok, err := store.Delete(ctx, "docs/p1/consent.pdf")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.Delete(ctx, "docs/p1/consent.pdf")
	if err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
	if _, _, err := store.Get(ctx, "docs/p1/consent.pdf"); err == nil {
		t.Fatalf("get after delete must fail")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	testStoreBasics(t, store)
	if _, err := store.PresignURL(context.Background(), "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestFilesystemStore(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	testStoreBasics(t, store)

	url, err := store.PresignURL(context.Background(), "docs/p2/referral.pdf", SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(url, "http://local.blob/") {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := store.PresignURL(context.Background(), "k", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("PATIENTCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s", store.Driver())
	}

	t.Setenv("PATIENTCORE_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}
