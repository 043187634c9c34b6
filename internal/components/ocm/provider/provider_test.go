package provider_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
)

type fixedProvider []string

func (f fixedProvider) ShareReceived(context.Context, shares.FederatedShareRequest) (string, error) {
	return "", nil
}

func (f fixedProvider) NotificationReceived(context.Context, string, string, map[string]any) (provider.Result, error) {
	return nil, nil
}

func (f fixedProvider) SupportedShareTypes() []string { return f }

func TestMapRegistry(t *testing.T) {
	r := provider.NewMapRegistry()
	if _, ok := r.Resolve("file"); ok {
		t.Fatal("empty registry resolved a provider")
	}

	r.Register("file", fixedProvider{"user"})
	r.Register("calendar", fixedProvider{"user", "group"})
	r.Register("file", fixedProvider{"user", "federation"})

	if _, ok := r.Resolve("file"); !ok {
		t.Fatal("file provider not resolved")
	}
	if got := r.SupportedShareTypes("file"); !reflect.DeepEqual(got, []string{"user", "federation"}) {
		t.Errorf("re-registration did not replace provider: %v", got)
	}
	if got := r.SupportedShareTypes("contacts"); got != nil {
		t.Errorf("unknown resource type share types = %v", got)
	}
	if got := r.ResourceTypes(); !reflect.DeepEqual(got, []string{"calendar", "file"}) {
		t.Errorf("ResourceTypes = %v", got)
	}
}

func TestMapRegistry_DrivesBuilder(t *testing.T) {
	r := provider.NewMapRegistry()
	r.Register("file", fixedProvider{"user"})

	f := shares.Fields{
		ShareWith: "bob@receiver.example.com", Name: "a", ProviderID: "1",
		Owner: "alice@sender.example.com", Sender: "alice@sender.example.com",
		ShareType: "group", ResourceType: "file",
	}
	proto := map[string]any{"name": "webdav", "options": map[string]any{"sharedSecret": "s"}}
	if _, err := shares.NewBuilder(r).Build(f, proto); err == nil {
		t.Error("expected group share to be rejected by the registry share types")
	}
	f.ShareType = "user"
	if _, err := shares.NewBuilder(r).Build(f, proto); err != nil {
		t.Errorf("Build: %v", err)
	}
}
