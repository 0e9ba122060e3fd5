package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/export"
	"github.com/thiagofdso/adapta-chat/internal/persona"
	"github.com/thiagofdso/adapta-chat/internal/storage"
)

// ============================================================================
// AGENTS COMMAND
// ============================================================================

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage saved agent instructions and backend bindings",
	Long: `Saved agent configuration is used by every debate that does not pass
its own --bind or --instructions flags.

Agents are addressed as "Agent 2", "agent2" or just "2".`,
}

var agentsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show saved agent configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		instructions, err := store.LoadCustomInstructions()
		if err != nil {
			return err
		}
		bindings, err := store.LoadModelBindings()
		if err != nil {
			return err
		}

		ids := make(map[string]struct{})
		for id := range instructions {
			ids[id] = struct{}{}
		}
		for id := range bindings {
			ids[id] = struct{}{}
		}
		if len(ids) == 0 {
			fmt.Println("No saved agent configuration. Agents use round-robin backends and no instructions.")
			return nil
		}

		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Slice(sorted, func(i, j int) bool { return agentNumber(sorted[i]) < agentNumber(sorted[j]) })

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tBACKEND\tINSTRUCTIONS")
		for _, id := range sorted {
			backend := bindings[id]
			if backend == "" {
				backend = "(round-robin)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, backend, truncate(instructions[id], 60))
		}
		return w.Flush()
	},
}

var agentsInstructCmd = &cobra.Command{
	Use:   "set-instructions <agent> <instructions...>",
	Short: "Save custom instructions for an agent (\"@skeptic\" uses a persona)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := core.NormalizeAgentID(args[0])
		if err != nil {
			return err
		}
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if _, err := persona.Expand(text); err != nil {
			return err
		}

		return updateAgentConfig(func(instructions, _ map[string]string) {
			instructions[id] = text
		}, fmt.Sprintf("Saved instructions for %s", id))
	},
}

var agentsBindCmd = &cobra.Command{
	Use:   "bind <agent> <backend>",
	Short: "Bind an agent to a backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := core.NormalizeAgentID(args[0])
		if err != nil {
			return err
		}

		backend := args[1]
		bc, ok := appConfig.GetBackend(backend)
		if !ok {
			return fmt.Errorf("unknown backend: %s", backend)
		}

		return updateAgentConfig(func(_, bindings map[string]string) {
			bindings[id] = bc.Name
		}, fmt.Sprintf("Bound %s to %s", id, bc.Name))
	},
}

var agentsUnbindCmd = &cobra.Command{
	Use:   "unbind <agent>",
	Short: "Return an agent to round-robin assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := core.NormalizeAgentID(args[0])
		if err != nil {
			return err
		}
		return updateAgentConfig(func(instructions, bindings map[string]string) {
			delete(bindings, id)
			if agentsUnbindAll {
				delete(instructions, id)
			}
		}, fmt.Sprintf("Unbound %s", id))
	},
}

var agentsUnbindAll bool

var agentsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all saved agent configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateAgentConfig(func(instructions, bindings map[string]string) {
			clear(instructions)
			clear(bindings)
		}, "Cleared saved agent configuration")
	},
}

func init() {
	agentsUnbindCmd.Flags().BoolVar(&agentsUnbindAll, "all", false, "Also remove the agent's instructions")

	agentsCmd.AddCommand(agentsShowCmd)
	agentsCmd.AddCommand(agentsInstructCmd)
	agentsCmd.AddCommand(agentsBindCmd)
	agentsCmd.AddCommand(agentsUnbindCmd)
	agentsCmd.AddCommand(agentsClearCmd)
	agentsCmd.AddCommand(personasCmd)
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List instruction personas usable as \"@id\"",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, p := range persona.DefaultPersonas() {
			fmt.Fprintf(w, "@%s\t%s\t%s\n", p.ID, p.Name, p.Description)
		}
		return w.Flush()
	},
}

// updateAgentConfig loads both mappings, applies fn and saves them back.
func updateAgentConfig(fn func(instructions, bindings map[string]string), done string) error {
	store, err := getStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	instructions, err := store.LoadCustomInstructions()
	if err != nil {
		return err
	}
	bindings, err := store.LoadModelBindings()
	if err != nil {
		return err
	}

	fn(instructions, bindings)

	if err := store.SaveCustomInstructions(instructions); err != nil {
		return err
	}
	if err := store.SaveModelBindings(bindings); err != nil {
		return err
	}

	fmt.Println(done)
	return nil
}

func agentNumber(id string) int {
	var n int
	fmt.Sscanf(strings.TrimPrefix(id, "Agent "), "%d", &n)
	return n
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// ============================================================================
// HISTORY COMMAND
// ============================================================================

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse archived debates",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived debates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debates, err := store.ListDebates(historyLimit, 0)
		if err != nil {
			return err
		}

		if len(debates) == 0 {
			fmt.Println("No debates found. Start one with: adapta debate \"Your topic\"")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTOPIC\tAGENTS\tROUNDS\tMANAGER\tCREATED")
		for _, d := range debates {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				shortID(d.ID),
				truncate(d.Topic, 35),
				d.NumAgents,
				d.NumRounds,
				d.Manager,
				d.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an archived debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debate, err := findDebateByPrefix(store, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("\nDebate: %s\n", debate.Topic)
		fmt.Printf("   ID: %s\n", debate.ID)
		fmt.Printf("   Status: %s\n", debate.Status)
		fmt.Printf("   Manager: %s\n", debate.Manager)
		fmt.Printf("   Final round: %s\n", debate.FinalRoundMode)
		fmt.Printf("   Created: %s\n", debate.CreatedAt.Format(time.RFC3339))
		for _, a := range debate.Agents {
			fmt.Printf("   %s: %s\n", a.ID, a.Backend)
		}
		fmt.Println()

		for _, round := range debate.Rounds {
			fmt.Println(strings.Repeat("─", 60))
			fmt.Printf("Round %d\n", round.Round)
			fmt.Println(strings.Repeat("─", 60))
			for _, o := range round.Outcomes {
				fmt.Printf("\n[%s via %s]\n", o.AgentID, o.Backend)
				switch o.Kind {
				case core.OutcomeContent:
					fmt.Println(o.Content)
				case core.OutcomeEmpty:
					fmt.Println("(empty response)")
				default:
					fmt.Printf("(failed: %s)\n", o.Error)
				}
			}
			fmt.Println()
		}

		if debate.Synthesis != nil {
			printConclusion(debate)
		}
		return nil
	},
}

var (
	historyExportOutput string
	historyExportFormat string
)

var historyExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export an archived debate",
	Long: `Export an archived debate to markdown, PDF, or JSON.

Without --format the format follows the -o extension, then defaults to markdown.

Examples:
  adapta history export abc123
  adapta history export abc123 --format pdf
  adapta history export abc123 -o debate.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := historyExportFormat
		if name == "" && historyExportOutput != "" {
			name = filepath.Ext(historyExportOutput)
		}
		format, err := export.ParseFormat(name)
		if err != nil {
			return err
		}

		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debate, err := findDebateByPrefix(store, args[0])
		if err != nil {
			return err
		}

		p := &export.FilePersister{Path: historyExportOutput, Format: format}
		path, err := p.Persist(debate)
		if err != nil {
			return err
		}

		fmt.Printf("Exported to: %s\n", path)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debate, err := findDebateByPrefix(store, args[0])
		if err != nil {
			return err
		}

		if err := store.DeleteDebate(debate.ID); err != nil {
			return err
		}

		fmt.Printf("Deleted debate: %s\n", debate.ID)
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "l", 50, "Maximum number of debates to list")
	historyExportCmd.Flags().StringVarP(&historyExportOutput, "output", "o", "", "Output file (default: generated name)")
	historyExportCmd.Flags().StringVarP(&historyExportFormat, "format", "f", "", "Export format: markdown, json or pdf")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 50, "Maximum number of debates to list")
	historyCmd.RunE = historyListCmd.RunE

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func findDebateByPrefix(store storage.Storage, prefix string) (*core.Session, error) {
	debates, err := store.ListDebates(100, 0)
	if err != nil {
		return nil, err
	}
	for _, d := range debates {
		if strings.HasPrefix(d.ID, prefix) {
			return store.GetDebate(d.ID)
		}
	}
	return nil, fmt.Errorf("debate not found: %s", prefix)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
