package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Poller.BatchLimit != 100 {
		t.Errorf("batch_limit = %d, want 100", cfg.Poller.BatchLimit)
	}
	if cfg.Poller.MaxAttempts != 20 {
		t.Errorf("max_attempts = %d, want 20", cfg.Poller.MaxAttempts)
	}
	if cfg.Poller.BackoffCap != 15*time.Minute {
		t.Errorf("backoff_cap = %v, want 15m", cfg.Poller.BackoffCap)
	}
	if cfg.Poller.IdleSleep != 2*time.Minute {
		t.Errorf("idle_sleep = %v, want 2m", cfg.Poller.IdleSleep)
	}
	if cfg.Poller.FaultSleep != time.Second {
		t.Errorf("fault_sleep = %v, want 1s", cfg.Poller.FaultSleep)
	}
	if cfg.Router.BucketApplicationMap != "{}" {
		t.Errorf("bucket_application_map = %q, want {}", cfg.Router.BucketApplicationMap)
	}
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Errorf("gateway timeout = %v, want 10s", cfg.Gateway.Timeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WHPOLLER_GATEWAY.AUTH_TOKEN", "tok")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.AuthToken != "tok" {
		t.Errorf("auth_token = %q, want tok", cfg.Gateway.AuthToken)
	}
}
