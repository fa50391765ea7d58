package main

import (
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/trace"
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace-file>",
	Short: "Reconstruct a run from its trace",
	Long: `Replay reads a trace file and rebuilds the blackboard and node statuses
from the recorded events alone. No capability is invoked; artifact payload
hashes are verified against the recorded values.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	replay, err := trace.ReplayFile(args[0])
	if err != nil {
		return err
	}

	cmd.Printf("run:      %s\n", replay.RunID)
	cmd.Printf("status:   %s\n", replay.Status)
	if replay.Cancelled {
		cmd.Printf("cancelled: true\n")
	}
	cmd.Printf("entries:  %d (last sequence %d)\n", replay.Entries, replay.LastSequence)
	cmd.Printf("plans:    %d  reviews: %d  replans: %d\n",
		len(replay.Plans), len(replay.Reviews), len(replay.Replans))

	cmd.Println("nodes:")
	nodeIDs := make([]string, 0, len(replay.NodeStatuses))
	for id := range replay.NodeStatuses {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)
	for _, id := range nodeIDs {
		status := replay.NodeStatuses[id]
		cmd.Printf("  %-12s %s (attempts %d)\n",
			id, nodeStatusColor(status).Sprint(status), replay.NodeAttempts[id])
	}

	cmd.Println("artifacts:")
	for _, ref := range replay.Store.Refs() {
		artifact, err := replay.Store.Latest(ref.Kind, ref.Key)
		if err != nil {
			continue
		}
		cmd.Printf("  %-24s rev %d\n", ref, artifact.Revision)
	}
	return nil
}

func nodeStatusColor(status graph.NodeStatus) *color.Color {
	switch status {
	case graph.NodeStatusSucceeded:
		return color.New(color.FgGreen)
	case graph.NodeStatusFailed, graph.NodeStatusTimedOut:
		return color.New(color.FgRed)
	case graph.NodeStatusSkipped, graph.NodeStatusCancelled:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}
