package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctagard/gdb-bridge/internal/config"
	"github.com/ctagard/gdb-bridge/internal/mcp"
	"github.com/ctagard/gdb-bridge/internal/version"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	mode := flag.String("mode", "", "Capability mode: 'readonly' or 'full' (overrides the config file)")
	gdbPath := flag.String("gdb", "", "Path to the gdb binary (overrides the config file)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("gdb-bridge version %s\n", version.GetVersion())
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch *mode {
	case "":
	case "readonly":
		cfg.Mode = config.ModeReadOnly
	case "full":
		cfg.Mode = config.ModeFull
	default:
		log.Fatalf("Unknown mode %q: use 'readonly' or 'full'", *mode)
	}
	if *gdbPath != "" {
		cfg.GDB.Path = *gdbPath
	}

	server := mcp.NewServer(cfg)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		server.Close()
		os.Exit(0)
	}()

	// MCP traffic owns stdout; the log package writes to stderr
	log.Printf("gdb-bridge %s starting (mode %s, gdb %s)", version.GetVersion(), cfg.Mode, cfg.GDB.Path)
	if err := server.ServeStdio(); err != nil {
		server.Close()
		log.Fatalf("Server error: %v", err)
	}
	server.Close()
}

func printHelp() {
	fmt.Println(`gdb-bridge: GDB/MI debugging over the Model Context Protocol

Runs gdb in machine-interface mode and exposes its sessions as MCP tools,
so AI agents can launch native programs, set breakpoints, step, and read
registers, memory and expressions.

USAGE:
    gdb-bridge [OPTIONS]

OPTIONS:
    -config <path>     Path to configuration file (JSON)
    -mode <mode>       Capability mode: 'readonly' or 'full' (default: full)
    -gdb <path>        gdb binary to run (default: gdb on PATH)
    -version           Show version and exit
    -help              Show this help message

CONFIGURATION:
    {
        "mode": "full",
        "allowSpawn": true,
        "allowExecute": true,
        "maxSessions": 10,
        "sessionTimeout": "30m",
        "eventHistory": 200,
        "watchProgram": false,
        "gdb": {
            "path": "gdb",
            "args": [],
            "startupTimeout": "10s",
            "minVersion": "7.12",
            "entrySymbol": "_start",
            "record": true,
            "registerFormat": "x"
        }
    }

MCP INTEGRATION:
    {
        "mcpServers": {
            "gdb-bridge": {
                "command": "gdb-bridge",
                "args": ["-mode", "full"]
            }
        }
    }

TOOLS:
    Session Management:
        debug_launch          Start gdb on a program and run it
        debug_disconnect      End a debug session
        debug_list_sessions   List active sessions

    Inspection:
        debug_stack           Get call stack
        debug_evaluate        Registers, memory (-x), expressions (-p), gdb commands
        debug_registers       Read several registers at once
        debug_events          Poll output, breakpoint and stop events
        debug_exception       Signal behind the last exception stop

    Control (full mode only):
        debug_breakpoints     Replace the breakpoints of a source file
        debug_continue        Continue execution
        debug_step            Step over, into, out or back
        debug_pause           Pause execution`)
}
