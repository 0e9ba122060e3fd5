package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/engine"
	"github.com/thiagofdso/adapta-chat/internal/export"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
	"github.com/thiagofdso/adapta-chat/internal/prompt"
)

var (
	debateAgents       int
	debateRounds       int
	debateBindings     []string
	debateInstructions []string
	debateManager      string
	debateFinalRound   string
	debateOutput       string
	debateFormat       string
	debateStep         bool
	debateQuiet        bool
)

var debateCmd = &cobra.Command{
	Use:   "debate <topic>",
	Short: "Run a debate between agents",
	Long: `Run a debate on a topic.

Agents without a binding are assigned backends round-robin in the order of
'adapta backends'. Bindings and instructions given here apply to this debate
only; without them the saved agent configuration is used.

Examples:
  adapta debate "Should we adopt a monorepo?"
  adapta debate -n 4 -r 2 --bind "1=Claude" --instructions "2=Argue against." "Tabs or spaces?"
  adapta debate --step --final-round contextual -o result.pdf "Is Go a good fit for CLIs?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDebate,
}

func init() {
	debateCmd.Flags().IntVarP(&debateAgents, "agents", "n", 0, "Number of agents (default from config)")
	debateCmd.Flags().IntVarP(&debateRounds, "rounds", "r", 0, "Number of rounds (default from config)")
	debateCmd.Flags().StringArrayVar(&debateBindings, "bind", nil, "Bind an agent to a backend, e.g. \"1=Claude\" (repeatable)")
	debateCmd.Flags().StringArrayVar(&debateInstructions, "instructions", nil, "Custom instructions for an agent, e.g. \"2=Argue against.\" (repeatable)")
	debateCmd.Flags().StringVar(&debateManager, "manager", "", "Backend that synthesizes the conclusion (default from config)")
	debateCmd.Flags().StringVar(&debateFinalRound, "final-round", "", "Final round prompt: fixed or contextual (default from config)")
	debateCmd.Flags().StringVarP(&debateOutput, "output", "o", "", "Transcript path (default from config)")
	debateCmd.Flags().StringVar(&debateFormat, "format", "", "Transcript format: markdown, json or pdf (default from output extension)")
	debateCmd.Flags().BoolVar(&debateStep, "step", false, "Wait for Enter before each round")
	debateCmd.Flags().BoolVarP(&debateQuiet, "quiet", "q", false, "Only print the final conclusion")
}

func runDebate(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")

	cfg := core.StartConfig{
		Topic:     topic,
		NumAgents: debateAgents,
		NumRounds: debateRounds,
		Manager:   debateManager,
	}
	if cfg.NumAgents == 0 {
		cfg.NumAgents = appConfig.Defaults.Agents
	}
	if cfg.NumRounds == 0 {
		cfg.NumRounds = appConfig.Defaults.Rounds
	}

	var err error
	if len(debateBindings) > 0 {
		if cfg.Bindings, err = core.ParseAssignments(debateBindings); err != nil {
			return err
		}
	}
	if len(debateInstructions) > 0 {
		if cfg.Instructions, err = core.ParseAssignments(debateInstructions); err != nil {
			return err
		}
	}

	persister, err := debatePersister()
	if err != nil {
		return err
	}

	store, err := getStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	rec := metrics.NewRecorder(nil)
	registry, err := getRegistry(rec)
	if err != nil {
		return err
	}

	if debateFinalRound != "" {
		if _, err := prompt.ParseFinalRoundMode(debateFinalRound); err != nil {
			return err
		}
		appConfig.Defaults.FinalRound = debateFinalRound
	}

	eng, err := newEngine(registry, store, rec, persister, progressCallbacks())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := eng.Start(ctx, cfg)
	if err != nil {
		return err
	}
	printSetup(snap)

	stdin := bufio.NewReader(os.Stdin)
	for snap.Status != core.StatusSynthesizing {
		if debateStep {
			fmt.Printf("Press Enter to run round %d of %d...", snap.CurrentRound, snap.NumRounds)
			if _, err := stdin.ReadString('\n'); err != nil {
				eng.Reset()
				return fmt.Errorf("aborted: %w", err)
			}
		}

		if _, err := eng.RunCurrentRound(ctx); err != nil {
			return abort(ctx, eng, err)
		}
		if snap, err = eng.Advance(); err != nil {
			return abort(ctx, eng, err)
		}
	}

	if !debateQuiet {
		fmt.Printf("\nAsking %s for the final conclusion...\n", snap.Manager)
	}
	final, path, err := eng.SynthesizeAndPersist(ctx)
	if final == nil {
		return abort(ctx, eng, err)
	}

	printConclusion(final)

	if err != nil {
		// The debate is concluded; only the writes failed.
		fmt.Fprintf(os.Stderr, "\nWarning: %v\n", err)
	}
	if path != "" {
		fmt.Printf("\nTranscript saved to %s\n", path)
	}
	fmt.Printf("Debate ID: %s\n", final.ID)
	return nil
}

func abort(ctx context.Context, eng *engine.Engine, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		eng.Reset()
		return errors.New("debate interrupted")
	}
	return err
}

// debatePersister resolves the transcript path and format from flags and config.
func debatePersister() (*export.FilePersister, error) {
	if debateOutput == "" && debateFormat == "" {
		return defaultPersister(), nil
	}

	output := debateOutput
	if output == "" {
		output = appConfig.Defaults.Output
	}
	if output == "" {
		output = export.DefaultTranscriptPath
	}

	name := debateFormat
	if name == "" {
		name = filepath.Ext(output)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return &export.FilePersister{Path: output, Format: format}, nil
}

func progressCallbacks() engine.Callbacks {
	if debateQuiet {
		return engine.Callbacks{}
	}
	return engine.Callbacks{
		OnRoundStarted: func(round, numRounds int) {
			fmt.Printf("\n%s\n", strings.Repeat("─", 60))
			fmt.Printf("Round %d of %d\n", round, numRounds)
			fmt.Printf("%s\n", strings.Repeat("─", 60))
		},
		OnAgentResult: func(round int, o core.Outcome) {
			switch o.Kind {
			case core.OutcomeContent:
				fmt.Printf("\n[%s via %s, %s]\n%s\n", o.AgentID, o.Backend, o.Duration.Round(time.Millisecond), o.Content)
			case core.OutcomeEmpty:
				fmt.Printf("\n[%s via %s] returned an empty response\n", o.AgentID, o.Backend)
			default:
				fmt.Printf("\n[%s via %s] failed: %s\n", o.AgentID, o.Backend, o.Error)
			}
		},
		OnRoundComplete: func(result core.RoundResult) {
			if n := result.Failures(); n > 0 {
				fmt.Printf("\nRound %d finished with %d failed agent(s)\n", result.Round, n)
			}
		},
	}
}

func printSetup(s *core.Session) {
	if debateQuiet {
		return
	}
	fmt.Printf("Topic: %s\n", s.Topic)
	fmt.Printf("Agents: %d  Rounds: %d  Manager: %s  Final round: %s\n", s.NumAgents, s.NumRounds, s.Manager, s.FinalRoundMode)
	for _, a := range s.Agents {
		line := fmt.Sprintf("  %s -> %s", a.ID, a.Backend)
		if a.CustomInstructions != "" {
			line += fmt.Sprintf(" (%s)", a.CustomInstructions)
		}
		fmt.Println(line)
	}
}

func printConclusion(s *core.Session) {
	fmt.Printf("\n%s\n", strings.Repeat("═", 60))
	header := "FINAL CONCLUSION"
	if s.Synthesis != nil && s.Synthesis.Fallback {
		header += " (fallback)"
	}
	fmt.Println(header)
	fmt.Printf("%s\n\n", strings.Repeat("═", 60))
	fmt.Println(s.Conclusion())
}
