package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apresai/eduanim/internal/extract"
	"github.com/apresai/eduanim/internal/ingest"
	"github.com/apresai/eduanim/internal/llm"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/repair"
	"github.com/apresai/eduanim/internal/style"
)

// The inspection commands run one stage on its own, reading a file or
// stdin ("-").

var extractCmd = &cobra.Command{
	Use:   "extract <reply-file|->",
	Short: "Pull the animation program out of a saved model reply",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var repairCmd = &cobra.Command{
	Use:   "repair <program-file|->",
	Short: "Validate and repair an animation program",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepair,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate and print the lesson plan for a topic",
	RunE:  runPlan,
}

var (
	flagRepairStyle string
	flagRepairOut   string
	flagPlanTopic   string
	flagPlanLevel   string
	flagPlanDomain  string
	flagPlanSource  string
)

func init() {
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(planCmd)

	repairCmd.Flags().StringVarP(&flagRepairStyle, "style", "s", "", "Render style whose rules apply: "+styleNames())
	repairCmd.Flags().StringVarP(&flagRepairOut, "output", "o", "", "Write the repaired program here instead of stdout")

	planCmd.Flags().StringVarP(&flagPlanTopic, "topic", "p", "", "Concept to explain")
	planCmd.Flags().StringVarP(&flagPlanLevel, "complexity", "c", "", "Audience level: "+complexityNames())
	planCmd.Flags().StringVarP(&flagPlanDomain, "domain", "d", "", "Subject area")
	planCmd.Flags().StringVarP(&flagPlanSource, "source", "i", "", "Reference material (URL, PDF path, or text file path)")
	planCmd.Flags().StringVarP(&flagModel, "model", "m", "", "Model: "+strings.Join(llm.Models(), ", "))
	planCmd.Flags().StringVar(&flagAnthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY)")
	planCmd.Flags().StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key (overrides GEMINI_API_KEY)")
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	raw, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	code, strategy, ok := extract.Extract(raw)
	if !ok {
		return extract.ErrNoProgram
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "strategy: %s\n", strategy)
	fmt.Fprintln(cmd.OutOrStdout(), code)
	return nil
}

func runRepair(cmd *cobra.Command, args []string) error {
	src, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	prof, err := style.Lookup(flagRepairStyle)
	if err != nil {
		return err
	}

	prog := repair.New(repair.Options{AllowLaTeX: prof.AllowLaTeX}).Repair(src)

	errOut := cmd.ErrOrStderr()
	for _, a := range prog.Diagnostics {
		fmt.Fprintf(errOut, "  %s\n", a)
	}
	if !prog.IsValid {
		return prog.Failure()
	}
	fmt.Fprintf(errOut, "scene: %s (%d repairs)\n", prog.ClassName, len(prog.Diagnostics))

	if flagRepairOut != "" {
		return os.WriteFile(flagRepairOut, []byte(prog.Source), 0644)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), prog.Source)
	return err
}

func runPlan(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(flagPlanTopic)
	if topic == "" {
		return errors.New("--topic (-p) is required")
	}
	level, err := plan.ParseComplexity(flagPlanLevel)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	ctx := cmd.Context()
	logger, _, logCloser, err := newLogger(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	req := plan.Request{Topic: topic, Complexity: level, Domain: flagPlanDomain}
	if flagPlanSource != "" {
		ref, err := ingest.Load(ctx, flagPlanSource, logger)
		if err != nil {
			return err
		}
		req.Reference = ref.Text
	}

	model, err := llm.New(ctx, cfg.Model, llm.Config{
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		AWSRegion:       cfg.AWSRegion,
	})
	if err != nil {
		return err
	}
	p, issues, err := plan.NewSynthesizer(model, cfg.DomainPolicy(), logger).Synthesize(ctx, req)
	if err != nil {
		return err
	}
	for _, is := range issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s: %s\n", is.Severity, is.Category, is.Message)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
