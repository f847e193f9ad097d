package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/exporter"
	"github.com/spf13/pflag"
)

type config struct {
	MapPath     string
	Addrs       []string
	AddrFile    string
	PprofOut    string
	FoldedOut   string
	FoldedDepth string
	OtlpOut     string
	Watch       bool
	Settle      time.Duration
	LogLevel    string
}

func (cfg *config) RegisterFlags(f *pflag.FlagSet) {
	f.StringVarP(&cfg.MapPath, "map", "m", "", "Path of the linker map file.")
	f.StringSliceVarP(&cfg.Addrs, "addr", "a", nil, "Address to symbolicate, hex with or without 0x. Repeatable.")
	f.StringVar(&cfg.AddrFile, "addr-file", "", "File with one address per line to symbolicate.")
	f.StringVar(&cfg.PprofOut, "pprof", "", "Write a pprof size profile of the map to this file.")
	f.StringVar(&cfg.FoldedOut, "folded", "", "Write folded size stacks of the map to this file.")
	f.StringVar(&cfg.FoldedDepth, "folded-depth", "symbols", "Depth of folded stacks: sections, objects or symbols.")
	f.StringVar(&cfg.OtlpOut, "otlp", "", "Write an OTLP profiles export request with the size profile to this file.")
	f.BoolVarP(&cfg.Watch, "watch", "w", false, "Keep running, reload the map when it changes and symbolicate addresses read from stdin.")
	f.DurationVar(&cfg.Settle, "settle", 200*time.Millisecond, "How long the map file has to be quiet before it is reloaded in watch mode.")
	f.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn or error.")
}

func (cfg *config) Validate() error {
	if cfg.MapPath == "" {
		return errors.New("--map is required")
	}
	if _, err := cfg.foldedGranularity(); err != nil {
		return err
	}
	if _, err := cfg.slogLevel(); err != nil {
		return err
	}
	if cfg.Watch && cfg.Settle <= 0 {
		return fmt.Errorf("invalid --settle value %s, must be positive", cfg.Settle)
	}
	return nil
}

func (cfg *config) foldedGranularity() (exporter.Granularity, error) {
	switch strings.ToLower(cfg.FoldedDepth) {
	case "sections":
		return exporter.Sections, nil
	case "objects":
		return exporter.Objects, nil
	case "symbols":
		return exporter.Symbols, nil
	}
	return 0, fmt.Errorf("invalid --folded-depth %q", cfg.FoldedDepth)
}

func (cfg *config) slogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid --log-level %q", cfg.LogLevel)
	}
	return level, nil
}
