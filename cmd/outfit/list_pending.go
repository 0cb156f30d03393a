package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/outfit-dev/outfit/internal/statestore"
)

var listPendingCmd = &cobra.Command{
	Use:   "list-pending",
	Short: "List tools with a persisted plan that hasn't reached a terminal phase",
	Args:  cobra.NoArgs,
	RunE:  runListPending,
}

func runListPending(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	store, err := statestore.New(cfg.PlanStateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open state store: %v\n", err)
		exitWithCode(ExitGeneral)
	}
	defer store.Close()

	tools, err := store.ListPending()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: list pending plans: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	type pendingEntry struct {
		Tool      string `json:"tool"`
		Phase     string `json:"phase"`
		UpdatedAt string `json:"updated_at"`
	}
	entries := make([]pendingEntry, 0, len(tools))
	for _, tool := range tools {
		state, err := store.Load(tool)
		if err != nil {
			continue
		}
		entries = append(entries, pendingEntry{Tool: tool, Phase: string(state.Phase), UpdatedAt: state.UpdatedAt})
	}

	printJSON(entries)
	return nil
}
