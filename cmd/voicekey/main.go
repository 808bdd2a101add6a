package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"voicekey/internal/adapter/gateway"
	"voicekey/internal/adapter/history"
	"voicekey/internal/infra/config"
	"voicekey/internal/infra/logger"
	"voicekey/internal/infra/tracer"
)

func main() {
	// Handle help flag first
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "run"
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "run":
		err = run()
	case "encrypt":
		err = runEncrypt(os.Args[2:], os.Stdin, os.Stdout)
	case "history":
		err = runHistory(os.Args[2:], os.Stdout)
	case "version":
		fmt.Println("voicekey", gateway.Version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'voicekey --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`voicekey - push-to-talk dictation, voice commands and voice rewrite

USAGE:
    voicekey [COMMAND] [FLAGS]

COMMANDS:
    run         Start the voice input service (default)
    encrypt     Encrypt a secret for config or settings files
                Reads the value from the argument or stdin
    history     Print recent delivered results
    version     Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file (default: ~/.voicekey/config.yaml)
    --limit N          Number of history entries to print (default: 20)

ENVIRONMENT:
    VOICEKEY_CONFIG         Config file path
    VOICEKEY_SETTINGS_KEY   Passphrase for "enc:" secrets
    VOICEKEY_*              Override config values (see docs)
    A .env file in the working directory or ~/.voicekey is loaded first.`)
}

// flagValue returns the value of --name or --name=value in args.
func flagValue(args []string, name string) string {
	for i, arg := range args {
		if arg == "--"+name && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--"+name+"="); ok {
			return v
		}
	}
	return ""
}

func configPath() string {
	if p := flagValue(os.Args[1:], "config"); p != "" {
		return p
	}
	if p := os.Getenv("VOICEKEY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(config.DefaultDir(), "config.yaml")
}

// loadDotEnv loads .env files without overriding variables already set.
// Missing files are ignored.
func loadDotEnv() {
	for _, p := range []string{".env", filepath.Join(config.DefaultDir(), ".env")} {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: load %s: %v\n", p, err)
		}
	}
}

func run() error {
	// 1. Config
	loadDotEnv()
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Components
	a, err := initApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	// 4. Long-running loops
	g, gctx := errgroup.WithContext(ctx)
	a.scheduler.Start(gctx)
	g.Go(func() error { return a.gateway.Start(gctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	g.Go(func() error {
		if err := a.asr.EnsureModelReady(gctx); err != nil {
			log.Warn("speech model not ready", "error", err)
		}
		return nil
	})

	log.Info("voicekey starting",
		"gateway", cfg.Gateway.Addr,
		"settings", cfg.Settings.Path,
		"history", cfg.History.Enabled,
		"asr", cfg.ASR.Command,
	)

	return g.Wait()
}

// runEncrypt prints the "enc:" form of a secret.
func runEncrypt(args []string, in io.Reader, out io.Writer) error {
	passphrase := os.Getenv(config.PassphraseEnv)
	if passphrase == "" {
		return fmt.Errorf("%s is not set", config.PassphraseEnv)
	}

	var value string
	if len(args) > 0 {
		value = args[0]
	} else {
		b, err := io.ReadAll(io.LimitReader(in, 64*1024))
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		value = strings.TrimRight(string(b), "\r\n")
	}
	if value == "" {
		return fmt.Errorf("nothing to encrypt")
	}

	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, config.EncryptedPrefix+enc)
	return nil
}

// runHistory prints the most recent history entries, newest first.
func runHistory(args []string, out io.Writer) error {
	loadDotEnv()
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled")
	}

	limit := 20
	if v := flagValue(args, "limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid --limit %q", v)
		}
		limit = n
	}

	store, err := history.Open(cfg.History.Path, cfg.History.MaxEntries)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		app := e.App.Name
		if app == "" {
			app = "-"
		}
		fmt.Fprintf(out, "%s  %-9s  %-16s  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Mode, app, e.FinalText)
	}
	return nil
}
