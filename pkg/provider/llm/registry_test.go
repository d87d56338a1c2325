package llm

import (
	"context"
	"errors"
	"testing"
)

type nopGateway struct{ Gateway }

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry()

	var gotSettings Settings
	reg.Register("stub", func(_ context.Context, s Settings) (Gateway, error) {
		gotSettings = s
		return nopGateway{}, nil
	})

	gw, err := reg.Create(context.Background(), "stub", Settings{APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if gw == nil {
		t.Fatal("Create returned nil gateway")
	}
	if gotSettings.APIKey != "k" || gotSettings.Model != "m" {
		t.Errorf("factory saw settings %+v", gotSettings)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := NewRegistry()
	reg.Register("gemini", func(context.Context, Settings) (Gateway, error) { return nopGateway{}, nil })

	_, err := reg.Create(context.Background(), "nope", Settings{})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"openai", "anthropic", "gemini"} {
		reg.Register(name, func(context.Context, Settings) (Gateway, error) { return nopGateway{}, nil })
	}

	got := reg.Names()
	want := []string{"anthropic", "gemini", "openai"}
	if len(got) != len(want) {
		t.Fatalf("Names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistryOverwrite(t *testing.T) {
	reg := NewRegistry()
	reg.Register("p", func(context.Context, Settings) (Gateway, error) {
		return nil, errors.New("old factory")
	})
	reg.Register("p", func(context.Context, Settings) (Gateway, error) {
		return nopGateway{}, nil
	})

	if _, err := reg.Create(context.Background(), "p", Settings{}); err != nil {
		t.Errorf("Create after overwrite: %v", err)
	}
}
