package config

import (
	"os"
	"testing"
)

func TestDefault_MaskSIGPIPEOnByDefault(t *testing.T) {
	if !Default().MaskSIGPIPE {
		t.Fatal("Default().MaskSIGPIPE = false, want true")
	}
}

func TestLoad_MaskSIGPIPEEnvOverride(t *testing.T) {
	os.Setenv("COHOSRV_MASK_SIGPIPE", "false")
	defer os.Unsetenv("COHOSRV_MASK_SIGPIPE")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaskSIGPIPE {
		t.Fatal("COHOSRV_MASK_SIGPIPE=false did not disable MaskSIGPIPE")
	}
}

func TestLoad_MaskSIGPIPEEnvOverrideTrue(t *testing.T) {
	os.Setenv("COHOSRV_MASK_SIGPIPE", "1")
	defer os.Unsetenv("COHOSRV_MASK_SIGPIPE")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.MaskSIGPIPE {
		t.Fatal("COHOSRV_MASK_SIGPIPE=1 should enable MaskSIGPIPE")
	}
}

func TestLoad_YAMLOverridesMaskSIGPIPE(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cohosrv-*.yaml")
	if err != nil {
		t.Fatalf("create temp config: %v", err)
	}
	if _, err := f.WriteString("mask_sigpipe: false\n"); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	f.Close()

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaskSIGPIPE {
		t.Fatal("YAML mask_sigpipe: false should disable MaskSIGPIPE")
	}
}
