package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/taskqueue/internal/common"
)

// configPaths collects repeated -config flags, later files overriding
// earlier ones.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (repeatable, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

const usage = `taskqueue: a task queue scheduler operator CLI

Usage:
  taskqueue [-config path]... <command> [args]

Commands:
  serve    run the housekeeping cron scheduler in the foreground
  stats    print the current task queue population
  insert   attach a manually-described job to its task queue
  match    run matchAndGetJob against a manually-described resource

Use "taskqueue <command> -h" for command-specific flags.
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *showVersion {
		fmt.Printf("taskqueue version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, rest := args[0], args[1:]

	if len(configFiles) == 0 {
		if _, err := os.Stat("taskqueue.toml"); err == nil {
			configFiles = append(configFiles, "taskqueue.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Strs("paths", configFiles).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger := common.SetupLogger(config)
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var runErr error
	switch command {
	case "serve":
		common.PrintBanner(config, logger)
		runErr = runServe(ctx, config, logger, rest)
	case "stats":
		runErr = runStats(ctx, config, logger, rest)
	case "insert":
		runErr = runInsert(ctx, config, logger, rest)
	case "match":
		runErr = runMatch(ctx, config, logger, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		flag.Usage()
		os.Exit(2)
	}

	if runErr != nil {
		logger.Fatal().Err(runErr).Str("command", command).Msg("command failed")
		os.Exit(1)
	}
}
