package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftware/deskhand/internal/agent"
	"github.com/driftware/deskhand/internal/bus"
	"github.com/driftware/deskhand/internal/computer"
	"github.com/driftware/deskhand/internal/config"
	"github.com/driftware/deskhand/internal/editor"
	"github.com/driftware/deskhand/internal/gateway"
	"github.com/driftware/deskhand/internal/providers"
	"github.com/driftware/deskhand/internal/shell"
	"github.com/driftware/deskhand/internal/store"
	"github.com/driftware/deskhand/internal/tools"
	"github.com/driftware/deskhand/internal/tracing"
	"github.com/driftware/deskhand/internal/tracing/otelexport"
)

func resolveConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.DefaultPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("loading config: %v", err)
	}
	return cfg
}

// runtime holds the wired components shared by run and chat.
type runtime struct {
	mu  sync.Mutex
	cfg *config.Config

	provider providers.Provider
	registry *tools.Registry
	shellSes *shell.Session
	bus      *bus.Bus
	store    *store.SQLiteStore
	spans    *tracing.Collector
	gateway  *gateway.Server
	router   *agent.Router
	agentID  string
}

// buildRuntime probes the display, wires the tool registry, provider
// stack, store, tracing, and (if enabled) the gateway.
func buildRuntime(ctx context.Context, cfg *config.Config, agentID string) (*runtime, error) {
	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}

	physW, physH, err := computer.ProbePhysicalResolution(ctx, cfg.Display.InputBinary, cfg.Display.DisplayNumber)
	if err != nil {
		return nil, fmt.Errorf("probing display: %w", err)
	}
	disp, err := computer.NewDisplaySpec(physW, physH, cfg.Display.TargetWidth, cfg.Display.TargetHeight)
	if err != nil {
		return nil, err
	}

	capturer, err := computer.NewCapturer(disp, cfg.Display.CaptureCommand, cfg.Display.DisplayNumber)
	if err != nil {
		return nil, err
	}
	injector := computer.NewInjector(cfg.Display.InputBinary, cfg.Display.DisplayNumber)

	shellSes := shell.NewSession(shell.Config{
		Command:        cfg.Shell.Command,
		Timeout:        time.Duration(cfg.Shell.TimeoutSec) * time.Second,
		KillOnTimeout:  cfg.Shell.KillOnTimeout,
		OutputMaxChars: cfg.Shell.OutputMaxChars,
	})

	registry := tools.NewRegistry(disp)
	registry.Register(tools.NewComputerTool(capturer, injector,
		time.Duration(cfg.Display.ScreenshotDelayMs)*time.Millisecond))
	registry.Register(tools.NewBashTool(shellSes))
	registry.Register(tools.NewEditTool(editor.New()))

	var p providers.Provider = providers.NewOpenAIProvider(
		cfg.Provider.Name, apiKey, cfg.Provider.APIBase, cfg.Provider.Model)
	if cfg.Provider.RPM > 0 {
		p = providers.NewRateLimited(p, cfg.Provider.RPM)
	}
	p = providers.NewRetrying(p, cfg.Provider.MaxRetries)

	runStore, err := store.Open(config.ExpandHome(cfg.Store.Path))
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		provider: p,
		registry: registry,
		shellSes: shellSes,
		bus:      bus.New(),
		store:    runStore,
		router:   agent.NewRouter(),
		agentID:  config.NormalizeAgentID(agentID),
	}

	if cfg.Tracing.Enabled {
		rt.spans = tracing.NewCollector(runStore)
		if cfg.Tracing.OTLPEndpoint != "" {
			exp, err := otelexport.New(ctx, otelexport.Config{
				Endpoint: cfg.Tracing.OTLPEndpoint,
				Insecure: true,
			})
			if err != nil {
				rt.close()
				return nil, err
			}
			rt.spans.SetExporter(exp)
		}
		rt.spans.Start()
	}

	if cfg.Gateway.Enabled {
		rt.gateway = gateway.NewServer(rt.bus, cfg.Gateway.RPM)
		if err := rt.gateway.Start(cfg.Gateway.Listen); err != nil {
			rt.close()
			return nil, fmt.Errorf("starting gateway: %w", err)
		}
	}

	return rt, nil
}

// newLoop builds a Loop against the current config. Called per run so
// config hot reloads apply to the next run.
func (rt *runtime) newLoop() *agent.Loop {
	rt.mu.Lock()
	cfg := rt.cfg
	rt.mu.Unlock()

	l := agent.NewLoop(rt.agentID, rt.provider, rt.registry, cfg.Provider.Model, cfg.Agent)
	l.SetEvents(agent.BusSink{Bus: rt.bus})
	l.SetStore(rt.store)
	if rt.spans != nil {
		l.SetCollector(rt.spans)
	}
	rt.router.Register(l)
	return l
}

// setConfig swaps the active config; the next run picks it up.
func (rt *runtime) setConfig(cfg *config.Config) {
	rt.mu.Lock()
	rt.cfg = cfg
	rt.mu.Unlock()
}

func (rt *runtime) close() {
	rt.router.AbortAll()
	if rt.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		rt.gateway.Shutdown(ctx)
		cancel()
	}
	if rt.spans != nil {
		rt.spans.Stop()
	}
	rt.bus.Close()
	rt.shellSes.Close()
	if rt.store != nil {
		rt.store.Close()
	}
}
