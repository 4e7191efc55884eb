package conversation

import (
	"errors"
	"testing"

	"github.com/loomrun/loom/internal/agent/providers"
	"github.com/loomrun/loom/internal/loomerr"
)

func TestDriverRegistry_RegisterResolve(t *testing.T) {
	reg := NewDriverRegistry()
	fake := providers.NewFake()
	reg.Register("fake", fake)

	got, err := reg.Resolve("fake")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != fake {
		t.Errorf("Resolve() returned a different driver instance than registered")
	}
}

func TestDriverRegistry_ResolveUnknownBackend(t *testing.T) {
	reg := NewDriverRegistry()
	_, err := reg.Resolve("nonexistent")
	if err == nil {
		t.Fatal("Resolve() on unknown backend: want error, got nil")
	}
	var verr *loomerr.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Resolve() error = %v (%T), want *loomerr.ValidationError", err, err)
	}
}

func TestDriverRegistry_RegisterOverwritesByName(t *testing.T) {
	reg := NewDriverRegistry()
	first := providers.NewFake()
	second := providers.NewFake()
	reg.Register("fake", first)
	reg.Register("fake", second)

	got, err := reg.Resolve("fake")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != second {
		t.Errorf("Resolve() after re-register returned the first registration, want the second")
	}
}

