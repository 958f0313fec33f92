// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/duythong28/connect-career-fe-sub001/internal/app"
	"github.com/duythong28/connect-career-fe-sub001/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("connect-career client v%s\n", appVersion)
		return
	}

	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: missing client directory")
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}

	runClient(args[0])
}

func runClient(dirArg string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid client directory: %v", err)
	}

	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		log.Fatalf("Client directory does not exist: %s", absDir)
	}

	cfgPath := filepath.Join(absDir, "client.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		log.Printf("Created default config: %s", cfgPath)
	}

	printBanner(absDir, cfgPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		Dir:     absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
	}); err != nil {
		log.Fatalf("Client failed: %v", err)
	}
}

func showUsage() {
	fmt.Println("connect-career client — chat windows, calls and assistant streaming")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  connect-career <directory>     Run the client from the given directory")
	fmt.Println()
	fmt.Println("The directory holds the client's client.json configuration and identity")
	fmt.Println("key; both are created on first run.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Run a client")
	fmt.Println("  connect-career ./clients/me")
}

func printBanner(dir, cfgPath string, cfg config.Config) {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║               Connect Career Client Runner             ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Client Directory: %s\n", dir)
	fmt.Printf("Config File:      %s\n", cfgPath)
	if cfg.Profile.Name != "" {
		fmt.Printf("Profile:          %s\n", cfg.Profile.Name)
	}
	fmt.Printf("Channel Backend:  %s\n", cfg.Channel.Backend)
	fmt.Println()

	if cfg.Viewer.HTTPAddr != "" {
		viewerURL := cfg.Viewer.HTTPAddr
		if viewerURL[0] == ':' {
			viewerURL = "http://127.0.0.1" + viewerURL
		} else {
			viewerURL = "http://" + viewerURL
		}
		fmt.Printf("🌐 API:  %s\n", viewerURL)
		fmt.Println()
	}

	fmt.Println("Starting client... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Println()
}
