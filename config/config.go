// Package config loads the renderer settings: a TOML file, an optional .env
// file beside it and QVK_* environment overrides, in that order.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	EnvValidation  = "QVK_VALIDATION"
	EnvMSAA        = "QVK_MSAA"
	EnvDevice      = "QVK_DEVICE"
	EnvPresentMode = "QVK_PRESENT_MODE"
	EnvLog         = "QVK_LOG"
	EnvLogFrames   = "QVK_LOG_FRAMES"
	EnvLogLevel    = "QVK_LOG_LEVEL"
	EnvGameDir     = "QVK_GAMEDIR"
	EnvWidth       = "QVK_WIDTH"
	EnvHeight      = "QVK_HEIGHT"
)

// PresentMode names the swapchain present mode the user asked for. The
// device may not offer it, in which case FIFO is used.
type PresentMode string

const (
	PresentMailbox     PresentMode = "mailbox"
	PresentFIFO        PresentMode = "fifo"
	PresentImmediate   PresentMode = "immediate"
	PresentFIFORelaxed PresentMode = "fifo_relaxed"
)

type Config struct {
	Vk     VkConfig     `toml:"vk"`
	Window WindowConfig `toml:"window"`
	Game   GameConfig   `toml:"game"`
}

type VkConfig struct {
	Validation  bool        `toml:"validation"`
	MSAA        int         `toml:"msaa"`
	Device      int         `toml:"device"`
	PresentMode PresentMode `toml:"present_mode"`
	Log         bool        `toml:"log"`
	LogFrames   bool        `toml:"log_frames"`
	LogLevel    string      `toml:"log_level"`
}

type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type GameConfig struct {
	Dir string `toml:"dir"`
}

// MSAAEnabled reports whether the multisampled render target is the active
// one.
func (c VkConfig) MSAAEnabled() bool {
	return c.MSAA > 1
}

func Default() Config {
	return Config{
		Vk: VkConfig{
			Validation:  false,
			MSAA:        0,
			Device:      -1,
			PresentMode: PresentMailbox,
			LogLevel:    "info",
		},
		Window: WindowConfig{
			Width:  800,
			Height: 600,
			Title:  "qvk",
		},
		Game: GameConfig{
			Dir: "baseq2",
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, errors.Wrapf(err, "load config %s", path)
		default:
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return Config{}, errors.Newf("config %s: unknown key %q", path, undecoded[0].String())
			}
		}

		// variables already in the environment win over the file
		err = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
		if err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrap(err, "load .env")
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var err error
	if cfg.Vk.Validation, err = envBool(EnvValidation, cfg.Vk.Validation); err != nil {
		return err
	}
	if cfg.Vk.MSAA, err = envInt(EnvMSAA, cfg.Vk.MSAA); err != nil {
		return err
	}
	if cfg.Vk.Device, err = envInt(EnvDevice, cfg.Vk.Device); err != nil {
		return err
	}
	if cfg.Vk.Log, err = envBool(EnvLog, cfg.Vk.Log); err != nil {
		return err
	}
	if cfg.Vk.LogFrames, err = envBool(EnvLogFrames, cfg.Vk.LogFrames); err != nil {
		return err
	}
	if cfg.Window.Width, err = envInt(EnvWidth, cfg.Window.Width); err != nil {
		return err
	}
	if cfg.Window.Height, err = envInt(EnvHeight, cfg.Window.Height); err != nil {
		return err
	}
	if v, ok := envString(EnvPresentMode); ok {
		cfg.Vk.PresentMode = PresentMode(strings.ToLower(v))
	}
	if v, ok := envString(EnvLogLevel); ok {
		cfg.Vk.LogLevel = strings.ToLower(v)
	}
	if v, ok := envString(EnvGameDir); ok {
		cfg.Game.Dir = v
	}
	return nil
}

func envString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envBool(key string, fallback bool) (bool, error) {
	raw, ok := envString(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, errors.Wrapf(err, "parse %s", key)
	}
	return v, nil
}

func envInt(key string, fallback int) (int, error) {
	raw, ok := envString(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, errors.Wrapf(err, "parse %s", key)
	}
	return v, nil
}

func Validate(cfg Config) error {
	switch cfg.Vk.MSAA {
	case 0, 1, 2, 4, 8, 16:
	default:
		return errors.Newf("vk.msaa must be one of 0, 2, 4, 8, 16, got %d", cfg.Vk.MSAA)
	}
	if cfg.Vk.Device < -1 {
		return errors.Newf("vk.device must be -1 or a device index, got %d", cfg.Vk.Device)
	}
	switch cfg.Vk.PresentMode {
	case PresentMailbox, PresentFIFO, PresentImmediate, PresentFIFORelaxed:
	default:
		return errors.Newf("vk.present_mode %q is not one of mailbox, fifo, immediate, fifo_relaxed", cfg.Vk.PresentMode)
	}
	if cfg.Window.Width <= 0 || cfg.Window.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", cfg.Window.Width, cfg.Window.Height)
	}
	if strings.TrimSpace(cfg.Game.Dir) == "" {
		return errors.New("game.dir is required")
	}
	return nil
}
