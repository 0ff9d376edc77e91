package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/hostbridge/plugin-runtime/transport"
)

func echo(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

func testLayout(t *testing.T) *transport.Layout {
	t.Helper()
	l, err := transport.NewLayout(1, transport.Field{Name: "n", Kind: transport.KindU32})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestBuilder_DuplicateTag(t *testing.T) {
	b := NewBuilder()
	if err := b.Handle("echo", echo); err != nil {
		t.Fatal(err)
	}
	if err := b.Handle("echo", echo); err == nil {
		t.Fatal("duplicate tag must fail registration")
	}
}

func TestBuilder_Validation(t *testing.T) {
	b := NewBuilder()
	if err := b.Handle("", echo); err == nil {
		t.Error("empty tag must fail")
	}
	if err := b.Handle("x", nil); err == nil {
		t.Error("nil handler must fail")
	}
	if err := b.HandleBinary(1, nil, echo); err == nil {
		t.Error("nil layout must fail")
	}
	if err := b.HandleBinary(1, testLayout(t), nil); err == nil {
		t.Error("nil binary handler must fail")
	}
}

func TestBuilder_DuplicateMessageID(t *testing.T) {
	b := NewBuilder()
	if err := b.HandleBinary(7, testLayout(t), echo); err != nil {
		t.Fatal(err)
	}
	if err := b.HandleBinary(7, testLayout(t), echo); err == nil {
		t.Fatal("duplicate message id must fail registration")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	b := NewBuilder()
	if err := b.Handle("user.create", echo); err != nil {
		t.Fatal(err)
	}
	if err := b.HandleBinary(1, testLayout(t), echo); err != nil {
		t.Fatal(err)
	}
	r := b.Build()

	if _, ok := r.Lookup("user.create"); !ok {
		t.Error("registered tag not found")
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Error("unregistered tag found")
	}
	if _, layout, ok := r.LookupBinary(1); !ok || layout == nil {
		t.Error("registered message id not found")
	}
	if _, _, ok := r.LookupBinary(2); ok {
		t.Error("unregistered message id found")
	}
	if !r.HasBinary() {
		t.Error("HasBinary should be true")
	}
}

func TestRegistry_NoBinary(t *testing.T) {
	b := NewBuilder()
	if err := b.Handle("echo", echo); err != nil {
		t.Fatal(err)
	}
	if b.Build().HasBinary() {
		t.Error("HasBinary should be false without binary registrations")
	}
}

func TestRegistry_BuildIsSnapshot(t *testing.T) {
	b := NewBuilder()
	if err := b.Handle("a", echo); err != nil {
		t.Fatal(err)
	}
	r := b.Build()

	// Later builder mutation must not leak into the frozen registry.
	if err := b.Handle("b", echo); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("b"); ok {
		t.Error("registry must be a snapshot, not a view")
	}
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	b := NewBuilder()
	if err := b.Handle("echo", echo); err != nil {
		t.Fatal(err)
	}
	r := b.Build()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, ok := r.Lookup("echo"); !ok {
					t.Error("lookup failed under concurrency")
					return
				}
			}
		}()
	}
	wg.Wait()
}
