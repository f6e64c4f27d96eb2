package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xnumon-go/procmon/internal/sink"
	"github.com/xnumon-go/procmon/internal/sysinspect"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "preload current processes once and print a Stats snapshot",
		RunE:  statusE,
	}
}

// statusE is a one-shot diagnostic mode: with no resident daemon to
// query over IPC (out of scope per spec.md §1), it builds a Monitor
// against a NullSink, preloads every visible pid, drains the worker
// pool, and prints the resulting counters — useful for sanity-checking
// a config file's suppression lists and enrichment settings against the
// live system without emitting any records.
func statusE(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := buildLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	m, err := buildMonitor(logger, sink.NewNullSink(false))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pids, err := sysinspect.ListPids()
	if err != nil {
		return fmt.Errorf("enumerating pids: %w", err)
	}
	for _, pid := range pids {
		_ = m.PreloadPID(pid)
	}
	m.Close()

	st := m.Stats()
	fmt.Printf("procs:            %d\n", st.Procs)
	fmt.Printf("images:           %d\n", st.Images)
	fmt.Printf("live_acquisitions: %d\n", st.LiveAcq)
	fmt.Printf("oom:              %d\n", st.OOMs)
	fmt.Printf("miss_bypid:       %d\n", st.MissByPID)
	fmt.Printf("miss_forksubj:    %d\n", st.MissForkSubj)
	fmt.Printf("miss_execsubj:    %d\n", st.MissExecSubj)
	fmt.Printf("miss_execinterp:  %d\n", st.MissExecInterp)
	fmt.Printf("miss_chdirsubj:   %d\n", st.MissChdirSubj)
	fmt.Printf("miss_getcwd:      %d\n", st.MissGetCwd)
	fmt.Printf("prepq_lookups:    %d\n", st.PrepqLookups)
	fmt.Printf("prepq_misses:     %d\n", st.PrepqMisses)
	fmt.Printf("prepq_drops:      %d\n", st.PrepqDrops)
	fmt.Printf("prepq_skips:      %d\n", st.PrepqSkips)
	fmt.Printf("prepq_size:       %d\n", st.PrepqSize)
	return nil
}
