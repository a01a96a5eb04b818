package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/vgprep/internal/app"
)

// Environment variables that provide flag defaults.
const (
	EnvLogLevel = "VGPREP_LOG_LEVEL"
	EnvDataDir  = "VGPREP_DATA_DIR"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

const usage = `
vgprep - fetch and prepare the VisualGenome dataset.

Usage:
  vgprep <command> [options]

Commands:
  fetch      Download and lay out the dataset described by a plan.
  stats      Count relationships per predicate.
  sample     Draw a balanced sample of relationships with labels.
  features   Extract spatial and categorical features as JSON lines.
  preview    Render subject and object boxes onto images.

Run 'vgprep <command> -h' for the options of a command.
`

const fetchNote = `
Without --plan the built-in VisualGenome plan runs. The train/test splits
have no default host and are skipped unless --var splits_url=URL is given.
`

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	if len(args) == 0 {
		fmt.Fprint(output, usage)
		return nil, true, nil
	}

	command, rest := args[0], args[1:]
	switch command {
	case "-h", "--help", "help":
		fmt.Fprint(output, usage)
		return nil, true, nil
	case app.CommandFetch, app.CommandStats, app.CommandSample, app.CommandFeatures, app.CommandPreview:
	default:
		if strings.HasPrefix(command, "-") {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("flag provided before command: %s", command)}
		}
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", command)}
	}

	cfg := app.Config{Command: command}
	flagSet := flag.NewFlagSet("vgprep "+command, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprintf(output, "\nUsage:\n  vgprep %s [options]\n", command)
		if command == app.CommandFetch {
			fmt.Fprint(output, fetchNote)
		}
		fmt.Fprint(output, "\nOptions:\n")
		flagSet.PrintDefaults()
	}

	logLevel := envOr(EnvLogLevel, "info")
	flagSet.StringVar(&cfg.LogLevel, "log-level", logLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.StringVar(&cfg.LogFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")

	if command == app.CommandFetch {
		bindFetchFlags(flagSet, &cfg)
	} else {
		bindPrepareFlags(flagSet, command, &cfg.Prepare)
	}

	if err := flagSet.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))}
	}
	slog.Debug("Arguments parsed successfully.", "command", command)

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "command", config.Command)
	return config, false, nil
}

func bindFetchFlags(fs *flag.FlagSet, cfg *app.Config) {
	f := &cfg.Fetch
	f.Vars = map[string]string{}
	fs.Var((*listFlag)(&f.PlanPaths), "plan", "Plan file or directory. Repeatable. Defaults to the built-in plan.")
	fs.StringVar(&f.DataDir, "data-dir", envOr(EnvDataDir, app.DefaultDataDir), "Directory the dataset is staged in.")
	fs.IntVar(&f.Workers, "workers", 1, "Number of concurrent workers for the executor.")
	fs.Var(varsFlag(f.Vars), "var", "Override a plan variable as name=value. Repeatable.")
	fs.StringVar(&f.Ledger, "ledger", app.LedgerBadger, "Ledger backend. Options: 'badger' or 'memory'.")
	fs.StringVar(&f.NotifyURL, "notify-url", "", "Socket.IO server that receives progress events.")
	fs.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	fs.BoolVar(&f.Force, "force", false, "Run every step even if the ledger says it is complete.")
}

func bindPrepareFlags(fs *flag.FlagSet, command string, p *app.PrepareConfig) {
	fs.StringVar(&p.Relationships, "relationships", "", "Path to relationships.json.")
	fs.StringVar(&p.AliasesDir, "aliases", "", "Directory holding object_alias.txt and relationship_alias.txt.")

	switch command {
	case app.CommandStats:
		fs.Var(commaFlag(&p.Predicates), "predicates", "Comma separated predicates to keep.")
		fs.StringVar(&p.Format, "format", app.FormatText, "Output format. Options: 'text', 'json' or 'yaml'.")
	case app.CommandSample:
		fs.Var(commaFlag(&p.Predicates), "predicates", "Comma separated predicates to sample.")
		fs.IntVar(&p.PerPredicate, "per-predicate", 0, "Relationships to keep per predicate.")
		fs.Uint64Var(&p.Seed, "seed", 0, "Random seed.")
		fs.StringVar(&p.Out, "out", "", "Output relationships file.")
	case app.CommandFeatures:
		fs.Var(commaFlag(&p.Predicates), "predicates", "Comma separated predicates to extract.")
		fs.Var(commaFlag(&p.Objects), "objects", "Comma separated object categories. Aliases are folded into them.")
		fs.StringVar(&p.Out, "out", "", "Output JSON lines file.")
	case app.CommandPreview:
		fs.StringVar(&p.ImagesDir, "images", "", "Directory holding <image_id>.jpg files.")
		fs.IntVar(&p.N, "n", 1, "Number of relationships to render.")
		fs.Uint64Var(&p.Seed, "seed", 0, "Random seed.")
		fs.StringVar(&p.Out, "out", "", "Output directory for PNG previews.")
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// listFlag collects every occurrence of a repeatable flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// commaList splits its value on commas. Repeating the flag appends.
type commaList struct{ dst *[]string }

func commaFlag(dst *[]string) commaList { return commaList{dst: dst} }

func (c commaList) String() string {
	if c.dst == nil {
		return ""
	}
	return strings.Join(*c.dst, ",")
}

func (c commaList) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*c.dst = append(*c.dst, p)
		}
	}
	return nil
}

// varsFlag parses name=value pairs.
type varsFlag map[string]string

func (v varsFlag) String() string {
	pairs := make([]string, 0, len(v))
	for k, val := range v {
		pairs = append(pairs, k+"="+val)
	}
	return strings.Join(pairs, ",")
}

func (v varsFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v[name] = value
	return nil
}
