package main

import (
	"context"
	"testing"

	"pronunciation-practice-service/internal/config"
	"pronunciation-practice-service/internal/service/stt/mock"
	"pronunciation-practice-service/internal/service/stt/relay"
)

func TestAdapterFactory(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"mock", false},
		{"relay", false},
		{"google", false},
		{"whisper", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			factory, err := adapterFactory(config.STTConfig{Provider: tt.provider})
			if (err != nil) != tt.wantErr {
				t.Fatalf("adapterFactory(%q) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
			}
			if !tt.wantErr && factory == nil {
				t.Error("expected a factory")
			}
		})
	}
}

func TestAdapterFactory_Types(t *testing.T) {
	factory, _ := adapterFactory(config.STTConfig{Provider: "mock"})
	a, err := factory(context.Background())
	if err != nil {
		t.Fatalf("mock factory failed: %v", err)
	}
	if _, ok := a.(*mock.Adapter); !ok {
		t.Errorf("expected *mock.Adapter, got %T", a)
	}

	factory, _ = adapterFactory(config.STTConfig{Provider: "relay"})
	a, _ = factory(context.Background())
	if _, ok := a.(*relay.Adapter); !ok {
		t.Errorf("expected *relay.Adapter, got %T", a)
	}
}
