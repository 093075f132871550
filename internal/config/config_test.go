package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BillingTermsID != "2" {
		t.Errorf("expected default billing terms id 2, got %s", cfg.BillingTermsID)
	}
	if cfg.QuotingTimeout != 30*time.Second {
		t.Errorf("expected default quoting timeout 30s, got %s", cfg.QuotingTimeout)
	}
	if cfg.PriceDebounce != 1500*time.Millisecond {
		t.Errorf("expected default debounce 1.5s, got %s", cfg.PriceDebounce)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("QUOTING_TIMEOUT", "10s")
	t.Setenv("BILLING_TERMS_ID", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://clensy.com, https://www.clensy.com")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.QuotingTimeout != 10*time.Second {
		t.Errorf("expected quoting timeout 10s, got %s", cfg.QuotingTimeout)
	}
	if cfg.BillingTermsID != "7" {
		t.Errorf("expected billing terms id 7, got %s", cfg.BillingTermsID)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://www.clensy.com" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	t.Setenv("PRICE_DEBOUNCE", "not-a-duration")

	cfg := Load()
	if cfg.PriceDebounce != 1500*time.Millisecond {
		t.Errorf("expected fallback debounce 1.5s, got %s", cfg.PriceDebounce)
	}
}
