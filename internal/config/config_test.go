package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quillaja/kessler/internal/breakup"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	c := Default()
	c.Clock.FixedStepSec = 0
	c.LOD.MidKm = 1
	c.Render.Rendered = 20000

	err := c.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, part := range []string{"clock:", "lod:", "render:"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("expected %q in %q", part, err.Error())
		}
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kessler.toml")
	data := `
seed = 99

[clock]
time_multiplier = 600

[breakup]
policy = "suppress"
debris_cap = 500

[render]
simulated = 40000
rendered = 10000
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Seed != 99 || c.Clock.TimeMultiplier != 600 {
		t.Errorf("expected overrides applied, got seed %d multiplier %v", c.Seed, c.Clock.TimeMultiplier)
	}
	if c.Breakup.Policy != breakup.Suppress || c.Breakup.DebrisCap != 500 {
		t.Errorf("expected suppress policy with cap 500, got %s %d", c.Breakup.Policy, c.Breakup.DebrisCap)
	}
	if c.Clock.FixedStepSec != 1 || c.Cascade.LevelCeiling != 10 {
		t.Error("expected untouched keys to keep defaults")
	}
	if c.Render.Simulated != 40000 || c.Render.SwapRate != 0.02 {
		t.Errorf("unexpected render config %+v", c.Render)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "[clock]\nfixed_stepp = 2\n"},
		{"bad ratio", "[render]\nsimulated = 30000\nrendered = 20000\n"},
		{"bad policy", "[breakup]\npolicy = \"drop\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.toml")
			if err := os.WriteFile(path, []byte(tc.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	want := Default()
	want.Breakup.Policy = breakup.Suppress
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
