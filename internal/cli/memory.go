package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"formless/internal/store"
	"formless/pkg/formless"
)

func newMemoryCommand() *cobra.Command {
	memory := &cobra.Command{
		Use:   "memory",
		Short: "Manage stored memory items",
	}

	memory.AddCommand(newMemoryListCommand())
	memory.AddCommand(newMemoryPutCommand())
	memory.AddCommand(newMemoryGetCommand())
	memory.AddCommand(newMemoryRemoveCommand())

	return memory
}

func newMemoryListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every stored memory item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(memoryStore store.Store) error {
				items, err := memoryStore.ListAll(cmd.Context())
				if err != nil {
					return err
				}

				return printJSON(cmd, items)
			})
		},
	}
}

func newMemoryPutCommand() *cobra.Command {
	var kind string

	put := &cobra.Command{
		Use:   "put <intent> <value>",
		Short: "Create a memory item, or replace the one holding the intent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := formless.MemoryDraft{
				Intent: args[0],
				Value:  args[1],
				Kind:   formless.MemoryKind(kind),
			}
			if err := draft.Validate(); err != nil {
				return err
			}

			return withStore(cmd, func(memoryStore store.Store) error {
				item, err := upsertDraft(cmd, memoryStore, draft)
				if err != nil {
					return err
				}

				return printJSON(cmd, item)
			})
		},
	}
	put.Flags().StringVar(&kind, "kind", string(formless.MemoryKindLiteral), "memory kind: literal or template")

	return put
}

// upsertDraft creates the draft, or replaces the existing item that already
// holds its intent.
func upsertDraft(cmd *cobra.Command, memoryStore store.Store, draft formless.MemoryDraft) (formless.MemoryItem, error) {
	existing, err := memoryStore.ListByIntents(cmd.Context(), []string{draft.Intent})
	if err != nil {
		return formless.MemoryItem{}, err
	}
	if len(existing) > 0 {
		return memoryStore.Update(cmd.Context(), existing[0].ID, draft)
	}

	return memoryStore.Create(cmd.Context(), draft)
}

func newMemoryGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch one memory item by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(memoryStore store.Store) error {
				item, err := memoryStore.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return printJSON(cmd, item)
			})
		},
	}
}

func newMemoryRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete one memory item by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(memoryStore store.Store) error {
				return memoryStore.Delete(cmd.Context(), args[0])
			})
		},
	}
}

func withStore(cmd *cobra.Command, run func(memoryStore store.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	memoryStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = memoryStore.Close()
	}()

	return run(memoryStore)
}

func printJSON(cmd *cobra.Command, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	cmd.Println(string(encoded))

	return nil
}
