package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func main() {
	os.Exit(run())
}

func run() int {
	argv0 := filepath.Base(os.Args[0])

	cmd := buildSubcommand(os.Args[1:])
	if cmd == nil {
		fmt.Fprint(os.Stderr, usageText(argv0))
		return 1
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	logger := setupLogger(level)

	loop := newMainloop()
	cmd.bindMainloop(loop)

	// A closed stdout pipe must surface as a write error, not kill us.
	signal.Ignore(unix.SIGPIPE)
	loop.CatchSignals(unix.SIGINT, unix.SIGTERM)

	client := newPulseClient(loop, cfg, logger)

	// The command runs exactly once, on the first transition to Ready.
	// Later transitions only decide the exit code.
	started := false
	client.OnStateChange(func() {
		switch client.State() {
		case ContextConnecting, ContextAuthorizing, ContextSettingName:
			// Still handshaking.
		case ContextReady:
			if !started {
				started = true
				cmd.run(client)
			}
		case ContextTerminated:
			loop.Quit(0)
		default:
			loop.Quit(1)
		}
	})

	if err := client.Connect(); err != nil {
		logger.Error("connection failed", "error", err)
		return 1
	}

	code := loop.Run()
	client.Close()
	return code
}
