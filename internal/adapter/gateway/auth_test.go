package gateway

import (
	"errors"
	"testing"

	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{
		{Token: "tap-secret", Name: "event-tap"},
		{Token: "ui-secret", Name: "overlay"},
	})

	info, err := auth.Authenticate("ui-secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "overlay" {
		t.Errorf("Name = %q", info.Name)
	}

	info.Name = "changed"
	again, _ := auth.Authenticate("ui-secret")
	if again.Name != "overlay" {
		t.Errorf("client info shared between calls")
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "tap-secret", Name: "event-tap"}})

	_, err := auth.Authenticate("wrong-token")
	if !errors.Is(err, domain.ErrGatewayAuthFailed) {
		t.Errorf("err = %v, want ErrGatewayAuthFailed", err)
	}
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("err = %v, want to wrap ErrAuthInvalid", err)
	}
}

func TestStaticTokenAuthEmpty(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "", Name: "blank"}})

	if _, err := auth.Authenticate(""); err == nil {
		t.Fatal("empty token must not authenticate")
	}
	if _, err := NewStaticTokenAuth(nil).Authenticate("anything"); err == nil {
		t.Fatal("expected error for empty token list")
	}
}
