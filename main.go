package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VladMinzatu/linkmap-symbolizer/internal/exporter"
	"github.com/VladMinzatu/linkmap-symbolizer/internal/linkmap"
	"github.com/VladMinzatu/linkmap-symbolizer/internal/pprof"
	"github.com/VladMinzatu/linkmap-symbolizer/internal/symbolizer"
	"github.com/VladMinzatu/linkmap-symbolizer/internal/watch"
	"github.com/spf13/pflag"
)

func main() {
	var cfg config
	fs := pflag.NewFlagSet("linkmap-symbolizer", pflag.ExitOnError)
	cfg.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])
	cfg.Addrs = append(cfg.Addrs, fs.Args()...)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		os.Exit(2)
	}
	level, _ := cfg.slogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var err error
	if cfg.Watch {
		err = runWatch(cfg, os.Stdin, os.Stdout)
	} else {
		err = run(cfg, os.Stdout)
	}
	if err != nil {
		slog.Error("linkmap-symbolizer failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, out io.Writer) error {
	m, err := linkmap.Load(linkmap.NewFileLoader(cfg.MapPath))
	if err != nil {
		return err
	}
	s := symbolizer.New(m)

	addrs, err := symbolizer.ParseAddresses(cfg.Addrs)
	if err != nil {
		return err
	}
	if cfg.AddrFile != "" {
		more, err := symbolizer.ReadAddressFile(cfg.AddrFile)
		if err != nil {
			return err
		}
		addrs = append(addrs, more...)
	}
	for _, addr := range addrs {
		printFrame(out, s, addr)
	}

	return writeReports(cfg, m)
}

func writeReports(cfg config, m *linkmap.Map) error {
	if cfg.PprofOut != "" {
		if err := pprof.WriteProfileToFile(pprof.BuildSizeProfile(m), cfg.PprofOut); err != nil {
			return fmt.Errorf("writing pprof profile: %w", err)
		}
		slog.Info("Wrote pprof size profile", "path", cfg.PprofOut)
	}
	if cfg.FoldedOut != "" {
		depth, _ := cfg.foldedGranularity()
		if err := exporter.WriteFoldedStacksToFile(exporter.BuildFoldedSizes(m, depth), cfg.FoldedOut); err != nil {
			return fmt.Errorf("writing folded stacks: %w", err)
		}
		slog.Info("Wrote folded size stacks", "path", cfg.FoldedOut)
	}
	if cfg.OtlpOut != "" {
		now := func() uint64 { return uint64(time.Now().UnixNano()) }
		if err := exporter.WriteOltpRequest(exporter.BuildExportRequest(m, now), cfg.OtlpOut); err != nil {
			return fmt.Errorf("writing otlp request: %w", err)
		}
		slog.Info("Wrote OTLP size profile", "path", cfg.OtlpOut)
	}
	return nil
}

// runWatch answers addresses from in against the latest version of the map
// until in is exhausted or the process is interrupted.
func runWatch(cfg config, in io.Reader, out io.Writer) error {
	r, err := watch.NewReloader(cfg.MapPath, linkmap.NewFileLoader(cfg.MapPath), cfg.Settle)
	if err != nil {
		return err
	}
	if err := r.Start(); err != nil {
		return err
	}
	defer r.Stop()

	if err := writeReports(cfg, r.Current().Map()); err != nil {
		return err
	}
	// reports follow the map as it changes, only this goroutine writes them from here on
	go func() {
		for s := range r.Updates() {
			if err := writeReports(cfg, s.Map()); err != nil {
				slog.Warn("Failed to refresh reports", "error", err)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-stop:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			addrs, err := symbolizer.ParseAddresses([]string{line})
			if err != nil {
				slog.Warn("Skipping input line", "error", err)
				continue
			}
			s := r.Current()
			for _, addr := range addrs {
				printFrame(out, s, addr)
			}
		}
	}
}

func printFrame(out io.Writer, s *symbolizer.Symbolizer, addr uint64) {
	if f, ok := s.Resolve(addr); ok {
		fmt.Fprintln(out, f)
		return
	}
	fmt.Fprintf(out, "0x%x ??\n", addr)
}
