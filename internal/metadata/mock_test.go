package metadata

import (
	"context"
	"errors"
	"testing"
)

func TestMockStoreEphemeralCAS(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	v1, err := m.PutEphemeral(ctx, "/k", []byte("a"), WithEphemeralExpectNotExists())
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := m.PutEphemeral(ctx, "/k", []byte("b"), WithEphemeralExpectNotExists()); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("second create = %v, want ErrVersionMismatch", err)
	}

	v2, err := m.PutEphemeral(ctx, "/k", []byte("c"), WithEphemeralExpectedVersion(v1))
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if v2 <= v1 {
		t.Errorf("version did not advance: %d -> %d", v1, v2)
	}
	if _, err := m.PutEphemeral(ctx, "/k", nil, WithEphemeralExpectedVersion(v1)); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("stale renew = %v, want ErrVersionMismatch", err)
	}

	r, err := m.Get(ctx, "/k")
	if err != nil || !r.Exists || string(r.Value) != "c" || r.Version != v2 {
		t.Errorf("Get = %+v, %v", r, err)
	}
}

func TestMockStoreDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	if err := m.Delete(ctx, "/missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	v, _ := m.PutEphemeral(ctx, "/k", []byte("a"))
	if err := m.Delete(ctx, "/k", WithDeleteExpectedVersion(v+1)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("delete wrong version = %v", err)
	}
	if err := m.Delete(ctx, "/k", WithDeleteExpectedVersion(v)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if r, _ := m.Get(ctx, "/k"); r.Exists {
		t.Error("key still exists after delete")
	}
}

func TestMockStoreExpireAndClose(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()
	m.PutEphemeral(ctx, "/k", []byte("a"))

	m.ExpireSession()
	if r, _ := m.Get(ctx, "/k"); r.Exists {
		t.Error("ephemeral key survived session expiry")
	}

	m.Close()
	if _, err := m.Get(ctx, "/k"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after close = %v", err)
	}
}

func TestOptionExtraction(t *testing.T) {
	notExists, ver := ExtractEphemeralOptions(nil)
	if notExists || ver != nil {
		t.Error("empty options should extract to zero values")
	}
	notExists, ver = ExtractEphemeralOptions([]EphemeralOption{WithEphemeralExpectedVersion(4)})
	if notExists || ver == nil || *ver != 4 {
		t.Errorf("got %v %v", notExists, ver)
	}
	if v := ExtractDeleteExpectedVersion([]DeleteOption{WithDeleteExpectedVersion(9)}); v == nil || *v != 9 {
		t.Errorf("delete version = %v", v)
	}
}
