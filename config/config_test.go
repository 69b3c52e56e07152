package config

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

// clearEnv makes sure none of the overrides leak in from the machine running
// the tests. The previous values come back when the test ends.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		EnvValidation, EnvMSAA, EnvDevice, EnvPresentMode, EnvLog,
		EnvLogFrames, EnvLogLevel, EnvGameDir, EnvWidth, EnvHeight,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeFile(c *qt.C, dir, name, body string) string {
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(body), 0o644)
	c.Assert(err, qt.IsNil)
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "qvk.toml"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, Default())
}

func TestLoadFile(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	path := writeFile(c, t.TempDir(), "qvk.toml", `
[vk]
validation = true
msaa = 8
device = 1
present_mode = "fifo"
log = true
log_frames = true

[window]
width = 1280
height = 720
title = "quake2"

[game]
dir = "/opt/q2/baseq2"
`)

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Vk, qt.DeepEquals, VkConfig{
		Validation:  true,
		MSAA:        8,
		Device:      1,
		PresentMode: PresentFIFO,
		Log:         true,
		LogFrames:   true,
		LogLevel:    "info",
	})
	c.Assert(cfg.Vk.MSAAEnabled(), qt.IsTrue)
	c.Assert(cfg.Window, qt.DeepEquals, WindowConfig{Width: 1280, Height: 720, Title: "quake2"})
	c.Assert(cfg.Game.Dir, qt.Equals, "/opt/q2/baseq2")
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	path := writeFile(c, t.TempDir(), "qvk.toml", "[window]\ntitle = \"partial\"\n")

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Window.Title, qt.Equals, "partial")
	c.Assert(cfg.Window.Width, qt.Equals, 800)
	c.Assert(cfg.Vk.Device, qt.Equals, -1)
	c.Assert(cfg.Vk.PresentMode, qt.Equals, PresentMailbox)
}

func TestLoadUnknownKey(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	path := writeFile(c, t.TempDir(), "qvk.toml", "[vk]\nmsaa_level = 4\n")

	_, err := Load(path)
	c.Assert(err, qt.ErrorMatches, `config .*: unknown key "vk.msaa_level"`)
}

func TestLoadBadSyntax(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	path := writeFile(c, t.TempDir(), "qvk.toml", "[vk\n")

	_, err := Load(path)
	c.Assert(err, qt.ErrorMatches, "(?s)load config .*")
}

func TestEnvOverridesFile(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	path := writeFile(c, t.TempDir(), "qvk.toml", "[vk]\nmsaa = 2\npresent_mode = \"fifo\"\n")
	t.Setenv(EnvMSAA, "4")
	t.Setenv(EnvPresentMode, "IMMEDIATE")
	t.Setenv(EnvValidation, "true")
	t.Setenv(EnvGameDir, "/tmp/game")

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Vk.MSAA, qt.Equals, 4)
	c.Assert(cfg.Vk.PresentMode, qt.Equals, PresentImmediate)
	c.Assert(cfg.Vk.Validation, qt.IsTrue)
	c.Assert(cfg.Game.Dir, qt.Equals, "/tmp/game")
}

func TestDotEnvBesideConfig(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	dir := t.TempDir()
	path := writeFile(c, dir, "qvk.toml", "")
	writeFile(c, dir, ".env", "QVK_DEVICE=2\nQVK_LOG=1\n")

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Vk.Device, qt.Equals, 2)
	c.Assert(cfg.Vk.Log, qt.IsTrue)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	dir := t.TempDir()
	path := writeFile(c, dir, "qvk.toml", "")
	writeFile(c, dir, ".env", "QVK_DEVICE=2\n")
	t.Setenv(EnvDevice, "0")

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Vk.Device, qt.Equals, 0)
}

func TestBadEnvValue(t *testing.T) {
	c := qt.New(t)
	clearEnv(t)

	t.Setenv(EnvMSAA, "lots")
	_, err := Load("")
	c.Assert(err, qt.ErrorMatches, "parse QVK_MSAA: .*")
}

func TestValidate(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		err    string
	}{
		{"defaults", func(*Config) {}, ""},
		{"msaa", func(cfg *Config) { cfg.Vk.MSAA = 3 }, "vk.msaa must be one of .*"},
		{"device", func(cfg *Config) { cfg.Vk.Device = -2 }, "vk.device must be .*"},
		{"present mode", func(cfg *Config) { cfg.Vk.PresentMode = "vsync" }, `vk.present_mode "vsync" .*`},
		{"window", func(cfg *Config) { cfg.Window.Height = 0 }, "window size must be positive, got 800x0"},
		{"game dir", func(cfg *Config) { cfg.Game.Dir = " " }, "game.dir is required"},
	}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			cfg := Default()
			test.mutate(&cfg)
			err := Validate(cfg)
			if test.err == "" {
				c.Assert(err, qt.IsNil)
				return
			}
			c.Assert(err, qt.ErrorMatches, test.err)
		})
	}
}
