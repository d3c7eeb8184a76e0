package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gofhir/fhirobject/pkg/logger"
)

// OutputFormat specifies the output format.
type OutputFormat string

// Output format constants.
const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Config holds CLI configuration. Values are read from the YAML file named by
// -config first; flags given on the command line override them.
type Config struct {
	Schemas        []string     `yaml:"schemas"`
	Server         string       `yaml:"server"`
	ServerRate     float64      `yaml:"serverRate"`
	Packages       []string     `yaml:"packages"`
	Registry       string       `yaml:"registry"`
	CacheDir       string       `yaml:"cacheDir"`
	Output         OutputFormat `yaml:"output"`
	Sequential     bool         `yaml:"sequential"`
	StrictRefs     bool         `yaml:"strictRefs"`
	MaxConcurrency int          `yaml:"maxConcurrency"`
	Workers        int          `yaml:"workers"`
	Verbose        bool         `yaml:"verbose"`
	LogLevel       string       `yaml:"logLevel"`

	ConfigFile  string   `yaml:"-"`
	ShowVersion bool     `yaml:"-"`
	Files       []string `yaml:"-"`
}

func defaultConfig() *Config {
	return &Config{
		Output:     OutputText,
		StrictRefs: true,
		LogLevel:   "warn",
	}
}

// loadConfigFile merges the YAML file at path into cfg.
func loadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// parseArgs parses args (without the program name) into a Config.
func parseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	flags := defaultConfig()

	var schemas, packages, output string
	fs.StringVar(&flags.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&schemas, "schemas", "", "StructureDefinition files or directories (comma-separated)")
	fs.StringVar(&flags.Server, "server", "", "FHIR server base URL to load schemas from")
	fs.Float64Var(&flags.ServerRate, "server-rate", 0, "Maximum schema requests per second to -server (0 = unlimited)")
	fs.StringVar(&packages, "package", "", "FHIR package(s) to load schemas from (e.g., hl7.fhir.r4.core#4.0.1)")
	fs.StringVar(&output, "output", "text", "Output format: text, json")
	fs.BoolVar(&flags.Sequential, "sequential", false, "Decode sibling elements sequentially")
	fs.BoolVar(&flags.StrictRefs, "strict-refs", true, "Fail on unresolvable content references")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Show debug logging (same as -log-level debug)")
	fs.StringVar(&flags.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error, none")
	fs.BoolVar(&flags.ShowVersion, "v", false, "Show version")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if flags.ConfigFile != "" {
		if err := loadConfigFile(cfg, flags.ConfigFile); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "schemas":
			cfg.Schemas = splitList(schemas)
		case "server":
			cfg.Server = flags.Server
		case "server-rate":
			cfg.ServerRate = flags.ServerRate
		case "package":
			cfg.Packages = splitList(packages)
		case "output":
			cfg.Output = OutputFormat(output)
		case "sequential":
			cfg.Sequential = flags.Sequential
		case "strict-refs":
			cfg.StrictRefs = flags.StrictRefs
		case "verbose":
			cfg.Verbose = flags.Verbose
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		}
	})
	cfg.ConfigFile = flags.ConfigFile
	cfg.ShowVersion = flags.ShowVersion
	cfg.Files = fs.Args()

	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	cfg.Output = OutputFormat(strings.ToLower(string(cfg.Output)))
	switch cfg.Output {
	case OutputText, OutputJSON:
	case "":
		cfg.Output = OutputText
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Output)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
