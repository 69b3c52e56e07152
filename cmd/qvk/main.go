// Command qvk opens an SDL2 window and drives the renderer: one console
// overlay per frame until the window is closed.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v2"

	"github.com/q2vk/qvk/config"
	"github.com/q2vk/qvk/console"
	"github.com/q2vk/qvk/frame"
	"github.com/q2vk/qvk/logging"
	"github.com/q2vk/qvk/renderer"
	"github.com/q2vk/qvk/vkerr"
)

var consoleColor = mgl32.Vec4{0.1, 0.1, 0.3, 0.75}

// host is the engine side of the renderer: window, surface and game dir.
type host struct {
	window *sdl.Window
	cfg    config.Config
}

var _ renderer.Hooks = (*host)(nil)

func (h *host) Printf(format string, args ...any) {
	fmt.Printf(format, args...)
}

func (h *host) SurfaceExtensions() []string {
	return h.window.VulkanGetInstanceExtensions()
}

func (h *host) CreateSurface(instance core1_0.Instance, surfaceExt khr_surface.Extension) (khr_surface.Surface, error) {
	return vkng_sdl2.CreateSurface(instance, surfaceExt, h.window)
}

func (h *host) Gamedir() string {
	return h.cfg.Game.Dir
}

func (h *host) DrawableSize() (int, int) {
	width, height := h.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

type app struct {
	host   *host
	log    *logging.Log
	loader core.Loader
	r      *renderer.Renderer

	consoleHeight float32
}

func (a *app) Run() error {
	err := a.initWindow()
	if err != nil {
		return err
	}
	defer sdl.Quit()
	defer a.host.window.Destroy()

	a.r, err = renderer.Init(a.loader, a.host, a.host.cfg.Vk, a.log)
	if err != nil {
		return err
	}
	defer a.r.Shutdown()

	return a.mainLoop()
}

func (a *app) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	win := a.host.cfg.Window
	window, err := sdl.CreateWindow(win.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(win.Width), int32(win.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return errors.Wrap(err, "create window")
	}
	a.host.window = window

	a.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return errors.Wrap(err, "create vulkan loader")
	}
	return nil
}

func (a *app) mainLoop() error {
	rendering := true

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.KeyboardEvent:
				if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_BACKQUOTE {
					a.toggleConsole()
				}
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					w, h := a.host.DrawableSize()
					if w == 0 || h == 0 {
						rendering = false
						continue
					}
					rendering = true
					if err := a.r.Resize(); err != nil {
						return err
					}
				}
			}
		}
		if rendering {
			if err := a.drawFrame(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) toggleConsole() {
	if a.consoleHeight > 0 {
		a.consoleHeight = 0
	} else {
		a.consoleHeight = 1
	}
}

// drawFrame only gives up on fatal errors. Anything else is logged and the
// next frame is tried.
func (a *app) drawFrame() error {
	err := a.r.BeginFrame()
	if errors.Is(err, frame.ErrSwapchainStale) {
		return nil
	}
	if err != nil {
		return a.check(err)
	}

	if a.consoleHeight > 0 {
		transform := console.Transform(-1, -1, 2, 2*a.consoleHeight)
		if err := a.r.DrawConsole(transform, consoleColor); err != nil {
			a.log.Error().Err(err).Msg("draw console")
		}
	}

	_, err = a.r.EndFrame()
	return a.check(err)
}

func (a *app) check(err error) error {
	if err == nil {
		return nil
	}
	if vkerr.IsFatal(err) {
		return err
	}
	a.log.Warn().Err(err).Msg("frame dropped")
	return nil
}

func main() {
	configPath := flag.String("config", "qvk.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Vk, cfg.Game.Dir, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}

	a := &app{host: &host{cfg: cfg}, log: log, consoleHeight: 0.5}
	err = a.Run()
	log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func init() {
	runtime.LockOSThread()
}
