// internal/llm/llm_test.go
package llm

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	config map[string]string
	fail   bool
}

func (p *stubProvider) Initialize(config map[string]string) error {
	if p.fail {
		return errors.New("missing api key")
	}
	p.config = config
	return nil
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: "ok", ProviderName: "stub"}, nil
}

func TestRegisterAndGetProvider(t *testing.T) {
	Register("stub_ok", func() Provider { return &stubProvider{} })

	p, err := GetProvider("stub_ok", map[string]string{"api_key": "k"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "stub" {
		t.Errorf("name = %q", p.Name())
	}

	var found bool
	for _, name := range AvailableProviders() {
		if name == "stub_ok" {
			found = true
		}
	}
	if !found {
		t.Error("registered provider missing from listing")
	}
}

func TestGetProviderUnknown(t *testing.T) {
	if _, err := GetProvider("no_such_backend", nil); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestGetProviderInitializeFailure(t *testing.T) {
	Register("stub_broken", func() Provider { return &stubProvider{fail: true} })
	if _, err := GetProvider("stub_broken", nil); err == nil {
		t.Error("initialize failure should surface")
	}
}
