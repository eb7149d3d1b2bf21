package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/Carmen-Shannon/oxy-bench/engine"
	"github.com/Carmen-Shannon/oxy-bench/engine/config"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bench/engine/scene"
	"github.com/Carmen-Shannon/oxy-bench/engine/window"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/term"
)

// exitChoice ends the prompt loop.
const exitChoice = "exit"

func init() {
	// GLFW and the surface backends must stay on the main thread.
	runtime.LockOSThread()
}

// flags holds the command line overrides. Only flags set explicitly replace config values.
type flags struct {
	configPath string
	backend    string
	scene      string
	models     int
	seconds    int
	vsync      bool
	msaa       int
	workers    int
	validation bool
	software   bool
	resources  string
	shaders    string
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "oxy-bench.toml", "path of the TOML run configuration")
	fs.StringVar(&f.backend, "backend", "", "vulkan, wgpu or headless; empty prompts for each run")
	fs.StringVar(&f.scene, "scene", "", "complex or simple")
	fs.IntVar(&f.models, "models", 0, "extra model instances of the complex scene")
	fs.IntVar(&f.seconds, "time", 0, "run time limit in seconds")
	fs.BoolVar(&f.vsync, "vsync", false, "wait for vertical blank when presenting")
	fs.IntVar(&f.msaa, "msaa", 0, "MSAA sample count (1, 4 or 8)")
	fs.IntVar(&f.workers, "workers", 0, "command recording goroutines")
	fs.BoolVar(&f.validation, "validation", false, "enable the Vulkan validation layer")
	fs.BoolVar(&f.software, "software", false, "use a software WGPU adapter")
	fs.StringVar(&f.resources, "resources", "", "directory holding the scene models")
	fs.StringVar(&f.shaders, "shaders", "", "directory holding the compiled SPIR-V shaders")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Paths may start with ~ so a shared config can live in the home directory.
	for _, p := range []*string{&f.configPath, &f.resources, &f.shaders} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return f, nil
}

// apply copies the explicitly set flags into cfg.
func (f *flags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "backend":
			cfg.Backend = f.backend
		case "scene":
			cfg.Scene = f.scene
		case "models":
			cfg.ModelCount = f.models
		case "time":
			cfg.TimeLimitSeconds = f.seconds
		case "vsync":
			cfg.VSync = f.vsync
		case "msaa":
			cfg.MSAA = f.msaa
		case "workers":
			cfg.Workers = f.workers
		case "validation":
			cfg.Validation = f.validation
		case "software":
			cfg.Software = f.software
		case "resources":
			cfg.ResourceDir = f.resources
		case "shaders":
			cfg.ShaderDir = f.shaders
		}
	})
	cfg.Normalize()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fatal(fmt.Errorf("panic: %v", r))
		}
	}()

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	f, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		fatal(err)
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fatal(err)
	}
	f.apply(fs, &cfg)

	if err := run(cfg, f.configPath, os.Stdin, os.Stdout); err != nil {
		fatal(err)
	}
}

// run benchmarks one backend per prompt answer until the answer is exit. A backend preset in the
// configuration runs once without prompting.
func run(cfg config.Config, configPath string, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	interactive := cfg.Backend == ""
	for {
		name := cfg.Backend
		if interactive {
			name = prompt(reader, out, cfg.LastFPS)
		}
		if name == exitChoice {
			return nil
		}

		backendType, ok := renderer.ParseBackendType(name)
		if !ok {
			if !interactive {
				return fmt.Errorf("unknown backend %q", name)
			}
			fmt.Fprintf(out, "unknown backend %q\n", name)
			continue
		}

		fps, err := runOnce(cfg, backendType)
		if err != nil {
			return err
		}
		cfg.LastFPS = fps
		fmt.Fprintf(out, "%s: %.2f FPS average\n", backendType, fps)
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		if !interactive {
			return nil
		}
	}
}

// prompt asks for a backend until a non-empty answer arrives. End of input answers exit.
func prompt(in *bufio.Reader, out io.Writer, lastFPS float64) string {
	for {
		fmt.Fprintf(out, "Backend [vulkan/wgpu/headless/exit] (last run: %.2f FPS): ", lastFPS)
		line, err := in.ReadString('\n')
		choice := strings.ToLower(strings.TrimSpace(line))
		if choice != "" {
			return choice
		}
		if err != nil {
			return exitChoice
		}
	}
}

// runOnce opens a window unless the backend is headless, draws the configured scene and closes the window.
func runOnce(cfg config.Config, backendType renderer.RendererBackendType) (float64, error) {
	kind, ok := scene.ParseKind(cfg.Scene)
	if !ok {
		return 0, fmt.Errorf("unknown scene %q", cfg.Scene)
	}
	placements := scene.NewScene(kind,
		scene.WithModelCount(cfg.ModelCount),
		scene.WithResourceDir(cfg.ResourceDir),
	).Placements()

	title := "oxy-bench " + backendType.String()
	options := []engine.EngineBuilderOption{
		engine.WithProfiling(true),
		engine.WithTitle(title),
		engine.WithTimeLimit(cfg.TimeLimit()),
		engine.WithRendererOptions(rendererOptions(cfg)...),
	}

	if backendType != renderer.BackendTypeHeadless {
		win, err := window.NewWindow(
			window.WithTitle(title),
			window.WithWidth(cfg.Width),
			window.WithHeight(cfg.Height),
		)
		if err != nil {
			return 0, err
		}
		defer win.Close()
		options = append(options, engine.WithWindow(win))
	}

	return engine.NewEngine(backendType, options...).RunFrameLoop(placements)
}

func rendererOptions(cfg config.Config) []renderer.RendererBuilderOption {
	presentMode := renderer.PresentModeUncapped
	if cfg.VSync {
		presentMode = renderer.PresentModeVSync
	}
	return []renderer.RendererBuilderOption{
		renderer.WithPresentMode(presentMode),
		renderer.WithMSAA(renderer.MSAASampleCount(cfg.MSAA)),
		renderer.WithFramesInFlight(cfg.FramesInFlight),
		renderer.WithWorkers(cfg.Workers),
		renderer.WithShaderDir(cfg.ShaderDir),
		renderer.WithValidation(cfg.Validation),
		renderer.WithForceSoftwareRenderer(cfg.Software),
	}
}

// fatal prints err and, on a terminal, waits for Enter so a console window stays open long enough to read it.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "press Enter to exit")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}
	os.Exit(1)
}
