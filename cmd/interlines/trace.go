package main

import (
	"github.com/spf13/cobra"

	"github.com/Jalkey-Chen/InterLines/internal/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect recorded run traces",
}

var traceListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List trace files in the trace directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Trace.Dir
		if len(args) == 1 {
			dir = args[0]
		}

		infos, err := trace.List(dir)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			cmd.Printf("no traces under %s\n", dir)
			return nil
		}
		for _, info := range infos {
			cmd.Printf("%s  run=%s entries=%d\n", info.Path, info.RunID, info.Entries)
		}
		return nil
	},
}

var traceShowCmd = &cobra.Command{
	Use:   "show <trace-file>",
	Short: "Print the entries of a trace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := trace.ReadFile(args[0])
		if err != nil {
			return err
		}
		for _, entry := range entries {
			cmd.Printf("%6d  %s  %s\n",
				entry.Sequence,
				entry.Timestamp.Format("15:04:05.000"),
				entry.Type,
			)
		}
		return nil
	},
}

func init() {
	traceCmd.AddCommand(traceListCmd)
	traceCmd.AddCommand(traceShowCmd)
}
