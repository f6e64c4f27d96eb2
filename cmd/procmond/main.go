// Command procmond wires internal/procmon.Monitor into a runnable
// process: load a config file, enumerate the system's current processes
// through internal/sysinspect, and hand everything observed afterward to
// the configured sink until signaled to stop. The kernel pre-exec hook
// and audit-exec parser spec.md §1 treats as external collaborators are
// out of scope here too — this binary only demonstrates wiring the core
// up to a real OS and a real sink, the way the teacher's own ingesters
// each have a small cmd/ main that loads config, builds a logger, and
// runs until signaled.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logPath  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "procmond",
		Short:         "host process-execution monitor",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "/etc/procmond/procmond.conf", "path to the ini-style config file")
	root.PersistentFlags().StringVar(&logPath, "log-file", "-", "operational log destination; \"-\" means stderr")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "operational log level (DEBUG, INFO, WARN, ERROR, CRITICAL)")

	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	return root
}
