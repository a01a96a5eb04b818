package app

import (
	"errors"
	"fmt"
)

// Commands understood by App.Run.
const (
	CommandFetch    = "fetch"
	CommandStats    = "stats"
	CommandSample   = "sample"
	CommandFeatures = "features"
	CommandPreview  = "preview"
)

// Ledger backends.
const (
	LedgerBadger = "badger"
	LedgerMemory = "memory"
)

// Output formats of the stats command.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DefaultDataDir is where the dataset is staged unless told otherwise.
const DefaultDataDir = "data/VisualGenome"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Command string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	Fetch   FetchConfig
	Prepare PrepareConfig
}

// FetchConfig configures the fetch command.
type FetchConfig struct {
	// PlanPaths are .hcl files or directories. Empty means the built-in plan.
	PlanPaths []string
	DataDir   string
	Workers   int
	Vars      map[string]string
	Ledger    string
	NotifyURL string
	Force     bool
}

// PrepareConfig configures the stats, sample, features and preview commands.
type PrepareConfig struct {
	Relationships string
	Predicates    []string
	// Objects are the object categories of the features command. Empty
	// means every observed object, folded through the aliases.
	Objects       []string
	AliasesDir    string
	ImagesDir     string
	Out           string
	Format        string
	PerPredicate  int
	N             int
	Seed          uint64
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandFetch:
		if cfg.Fetch.DataDir == "" {
			cfg.Fetch.DataDir = DefaultDataDir
		}
		if cfg.Fetch.Workers <= 0 {
			cfg.Fetch.Workers = 1
		}
		switch cfg.Fetch.Ledger {
		case "":
			cfg.Fetch.Ledger = LedgerBadger
		case LedgerBadger, LedgerMemory:
		default:
			return nil, fmt.Errorf("invalid ledger %q: must be '%s' or '%s'", cfg.Fetch.Ledger, LedgerBadger, LedgerMemory)
		}
	case CommandStats, CommandSample, CommandFeatures, CommandPreview:
		if cfg.Prepare.Relationships == "" {
			return nil, errors.New("relationships file is required")
		}
		if err := validatePrepare(cfg.Command, &cfg.Prepare); err != nil {
			return nil, err
		}
	case "":
		return nil, errors.New("command is required")
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	return &cfg, nil
}

func validatePrepare(command string, p *PrepareConfig) error {
	switch command {
	case CommandStats:
		switch p.Format {
		case "":
			p.Format = FormatText
		case FormatText, FormatJSON, FormatYAML:
		default:
			return fmt.Errorf("invalid format %q: must be 'text', 'json' or 'yaml'", p.Format)
		}
	case CommandSample:
		if len(p.Predicates) == 0 {
			return errors.New("at least one predicate is required")
		}
		if p.PerPredicate <= 0 {
			return errors.New("per-predicate must be positive")
		}
		if p.Out == "" {
			return errors.New("output file is required")
		}
	case CommandFeatures:
		if len(p.Predicates) == 0 {
			return errors.New("at least one predicate is required")
		}
		if p.Out == "" {
			return errors.New("output file is required")
		}
	case CommandPreview:
		if p.ImagesDir == "" {
			return errors.New("images directory is required")
		}
		if p.Out == "" {
			return errors.New("output directory is required")
		}
		if p.N <= 0 {
			p.N = 1
		}
	}
	return nil
}
