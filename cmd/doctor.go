package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/driftware/deskhand/internal/computer"
	"github.com/driftware/deskhand/internal/config"
	"github.com/driftware/deskhand/internal/store"
	"github.com/driftware/deskhand/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("deskhand doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
	fmt.Printf("  Go:       %s\n", goruntime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Desktop:")
	checkBinary("input", cfg.Display.InputBinary)
	captureBin := captureBinary(cfg.Display.CaptureCommand)
	checkBinary("capture", captureBin)
	checkDisplay(cfg)

	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s\n", "name:", cfg.Provider.Name)
	fmt.Printf("    %-12s %s\n", "model:", cfg.Provider.Model)
	if key, err := cfg.ResolveAPIKey(); err != nil {
		fmt.Printf("    %-12s NOT FOUND (%s)\n", "api key:", err)
	} else {
		fmt.Printf("    %-12s %s\n", "api key:", maskKey(key))
	}

	fmt.Println()
	fmt.Println("  Store:")
	storePath := config.ExpandHome(cfg.Store.Path)
	fmt.Printf("    %-12s %s", "path:", storePath)
	if s, err := store.Open(storePath); err != nil {
		fmt.Printf(" (ERROR: %s)\n", err)
	} else {
		s.Close()
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func captureBinary(command string) string {
	parts, err := shellwords.Parse(command)
	if err != nil || len(parts) == 0 {
		return command
	}
	return parts[0]
}

func checkBinary(label, name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s %s NOT FOUND\n", label+":", name)
	} else {
		fmt.Printf("    %-12s %s\n", label+":", path)
	}
}

func checkDisplay(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	w, h, err := computer.ProbePhysicalResolution(ctx, cfg.Display.InputBinary, cfg.Display.DisplayNumber)
	if err != nil {
		fmt.Printf("    %-12s unreachable (%s)\n", "display:", err)
		return
	}
	disp, err := computer.NewDisplaySpec(w, h, cfg.Display.TargetWidth, cfg.Display.TargetHeight)
	if err != nil {
		fmt.Printf("    %-12s %dx%d (spec error: %s)\n", "display:", w, h, err)
		return
	}
	scale := "no scaling"
	if disp.ScalingEnabled() {
		scale = fmt.Sprintf("scaled to %dx%d", disp.TargetWidth, disp.TargetHeight)
	}
	fmt.Printf("    %-12s %dx%d (%s)\n", "display:", w, h, scale)
}

func maskKey(key string) string {
	if len(key) < 9 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
