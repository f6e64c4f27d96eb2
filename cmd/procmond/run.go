package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xnumon-go/procmon/internal/config"
	"github.com/xnumon-go/procmon/internal/sink"
	"github.com/xnumon-go/procmon/internal/sysinspect"
)

var outPath string

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "preload current processes and run until signaled",
		RunE:  runE,
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "sink destination for JSONL event records; \"-\" means stdout")
	return cmd
}

func runE(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := buildLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	w, closeOut, err := openLogWriter(outPath)
	if err != nil {
		return err
	}
	defer closeOut()
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	}
	sk := sink.NewJSONLSink(w)

	m, err := buildMonitor(logger, sk)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	watcher, err := config.NewWatcher(cfgPath, m, logger)
	if err != nil {
		logger.Warnf("suppression hot-reload disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	pids, err := sysinspect.ListPids()
	if err != nil {
		logger.Warnf("enumerating existing pids: %v", err)
	}
	for _, pid := range pids {
		_ = m.PreloadPID(pid)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logger.Infof("procmond running, preloaded %d processes", len(pids))
	<-sigCh

	logger.Infof("shutting down")
	m.Close()
	return nil
}
