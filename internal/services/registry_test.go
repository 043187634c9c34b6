package services

import (
	"log/slog"
	"net/http"
	"slices"
	"testing"
)

type mockService struct{}

func (m *mockService) Handler() http.Handler { return http.NotFoundHandler() }
func (m *mockService) Prefix() string        { return "mock" }
func (m *mockService) Close() error          { return nil }

func mockNewService(*Deps, *slog.Logger) (Service, error) {
	return &mockService{}, nil
}

func TestRegister(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	if err := Register("test-service", mockNewService); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if Get("test-service") == nil {
		t.Fatal("Get returned nil for registered service")
	}
	if Get("missing") != nil {
		t.Error("Get returned a constructor for an unregistered name")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	if err := Register("dup-service", mockNewService); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := Register("dup-service", mockNewService); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestMustRegister_Panics(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	MustRegister("panic-test", mockNewService)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate MustRegister")
		}
	}()
	MustRegister("panic-test", mockNewService)
}

func TestRegisteredServices_Sorted(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	for _, n := range []string{"ocm", "api", "wellknown"} {
		MustRegister(n, mockNewService)
	}
	got := RegisteredServices()
	if !slices.Equal(got, []string{"api", "ocm", "wellknown"}) {
		t.Errorf("RegisteredServices = %v", got)
	}
}

func TestBuild(t *testing.T) {
	resetRegistry()
	defer resetRegistry()
	MustRegister("mock", mockNewService)

	svcs, err := Build([]string{"mock"}, &Deps{}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(svcs) != 1 || svcs[0].Prefix() != "mock" {
		t.Errorf("built %v", svcs)
	}

	if _, err := Build([]string{"mock", "missing"}, &Deps{}, slog.New(slog.DiscardHandler)); err == nil {
		t.Error("expected error for unregistered service")
	}
}
