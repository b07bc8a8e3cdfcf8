package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/apresai/eduanim/internal/app"
	"github.com/apresai/eduanim/internal/config"
	"github.com/apresai/eduanim/internal/observability"
	"github.com/apresai/eduanim/internal/pipeline"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/progress"
	"github.com/apresai/eduanim/internal/storage"
	"github.com/apresai/eduanim/internal/style"
	"github.com/apresai/eduanim/internal/tts"
)

var Version = "dev"

// logFileName is written to the output directory unless --verbose is set.
const logFileName = "eduanim.log"

var rootCmd = &cobra.Command{
	Use:          "eduanim",
	Short:        "Turn a topic into an animated educational video",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The wizard sets generate's flags, so run as generate.
		flagTUI = true
		generateCmd.SetContext(cmd.Context())
		generateCmd.SetOut(cmd.OutOrStdout())
		return runGenerate(generateCmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "eduanim %s\n", Version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a video explaining a topic",
	RunE:  runGenerate,
}

var listVoicesCmd = &cobra.Command{
	Use:   "list-voices",
	Short: "List available narration voices for all TTS providers",
	RunE:  runListVoices,
}

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List render styles",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, n := range style.Names() {
			p := style.MustLookup(n)
			notes := []string{}
			if n == style.Default {
				notes = append(notes, "default")
			}
			if !p.AllowLaTeX {
				notes = append(notes, "no LaTeX")
			}
			if p.Segmented() {
				notes = append(notes, "sections: "+strings.Join(p.Segments, ", "))
			}
			fmt.Fprintf(out, "  %-12s %s\n", n, strings.Join(notes, "; "))
		}
	},
}

var (
	flagConfig          string
	flagTopic           string
	flagComplexity      string
	flagDomain          string
	flagStyle           string
	flagSource          string
	flagModel           string
	flagQuality         string
	flagOutput          string
	flagBranding        string
	flagTTS             string
	flagTTSVoice        string
	flagRefine          int
	flagExtractFB       bool
	flagJSON            bool
	flagVerbose         bool
	flagTUI             bool
	flagAnthropicAPIKey string
	flagGeminiAPIKey    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log to stderr instead of the log file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(listVoicesCmd)
	rootCmd.AddCommand(stylesCmd)

	f := generateCmd.Flags()
	f.StringVarP(&flagTopic, "topic", "p", "", "Concept to explain, e.g. \"Newton's first law\"")
	f.StringVarP(&flagComplexity, "complexity", "c", "", "Audience level: "+complexityNames())
	f.StringVarP(&flagDomain, "domain", "d", "", "Subject area (default: auto-detect)")
	f.StringVarP(&flagStyle, "style", "s", "", "Render style: "+styleNames())
	f.StringVarP(&flagSource, "source", "i", "", "Reference material (URL, PDF path, or text file path)")
	f.StringVarP(&flagModel, "model", "m", "", "Model: haiku, sonnet, gemini-flash, gemini-pro, nova-lite")
	f.StringVarP(&flagQuality, "quality", "q", "", "Render quality: low, medium, high, 2k, 4k")
	f.StringVarP(&flagOutput, "output", "o", "", "Directory for videos that are not uploaded")
	f.StringVar(&flagBranding, "branding", "", "Brand name shown by the fallback animation")
	f.StringVarP(&flagTTS, "tts", "T", "", "Narration provider: google, polly, vertex (default: none)")
	f.StringVar(&flagTTSVoice, "voice", "", "Narration voice ID (see list-voices)")
	f.IntVar(&flagRefine, "refine", 0, "Times an unrepairable program is sent back to the model")
	f.BoolVar(&flagExtractFB, "fallback-on-extraction-failure", false, "Render the fallback animation when the reply has no program")
	f.BoolVar(&flagJSON, "json", false, "Print the full result as JSON")
	f.BoolVarP(&flagTUI, "tui", "t", false, "Interactive setup wizard")
	f.StringVar(&flagAnthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY)")
	f.StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key (overrides GEMINI_API_KEY)")
}

func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the CLI with ctx, canceled on interrupt by main.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func complexityNames() string {
	names := make([]string, 0, len(plan.Complexities()))
	for _, c := range plan.Complexities() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func styleNames() string {
	names := make([]string, 0, len(style.Names()))
	for _, n := range style.Names() {
		names = append(names, string(n))
	}
	return strings.Join(names, ", ")
}

// loadConfig reads --config and the environment, then applies the flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(cmd, &cfg)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string, val string) {
		if cmd.Flags().Changed(name) {
			*dst = val
		}
	}
	set("complexity", &cfg.Complexity, flagComplexity)
	set("style", &cfg.Style, flagStyle)
	set("model", &cfg.Model, flagModel)
	set("quality", &cfg.Quality, flagQuality)
	set("output", &cfg.OutputDir, flagOutput)
	set("branding", &cfg.Branding, flagBranding)
	set("tts", &cfg.Narration.Provider, flagTTS)
	set("voice", &cfg.Narration.Voice, flagTTSVoice)
	set("anthropic-api-key", &cfg.AnthropicAPIKey, flagAnthropicAPIKey)
	set("gemini-api-key", &cfg.GeminiAPIKey, flagGeminiAPIKey)
	if cmd.Flags().Changed("refine") {
		cfg.RefineAttempts = flagRefine
	}
	if cmd.Flags().Changed("fallback-on-extraction-failure") {
		cfg.FallbackOnExtractionFailure = flagExtractFB
	}
}

// newLogger logs to stderr with --verbose, otherwise to a file in dir.
// The returned path is empty when logging to stderr.
func newLogger(dir string) (*slog.Logger, string, io.Closer, error) {
	if flagVerbose {
		return observability.NewLogger(os.Stderr, slog.LevelDebug), "", io.NopCloser(nil), nil
	}
	path := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open log file: %w", err)
	}
	return observability.NewLogger(f, slog.LevelInfo), path, f, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if flagTUI {
		if err := runInteractiveSetup(cmd); err != nil {
			return err
		}
	}
	if strings.TrimSpace(flagTopic) == "" {
		return errors.New("--topic (-p) is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := checkTools(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	logger, logPath, logCloser, err := newLogger(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var uploader storage.Uploader
	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		uploader = storage.NewS3(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix, cfg.CDNBaseURL, cfg.AWSRegion)
	}

	var bar *progress.BarRenderer
	var onProgress progress.Callback
	if !flagVerbose && !flagJSON {
		bar = progress.NewBarRenderer(os.Stdout)
		bar.LogFile = logPath
		onProgress = bar.Handle
	}

	p, closeFn, err := app.NewPipeline(ctx, cfg, app.Deps{Uploader: uploader, Progress: onProgress, Logger: logger})
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := p.Generate(ctx, pipeline.Request{
		Topic:      strings.TrimSpace(flagTopic),
		Complexity: cfg.Complexity,
		Domain:     flagDomain,
		Source:     flagSource,
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		if bar != nil {
			// The bar already printed the public message.
			return fmt.Errorf("generation failed (%s)", pipeline.KindOf(err))
		}
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if bar == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Video saved to %s\n", res.Reference)
	}
	return nil
}

// checkTools verifies the external binaries the run will need.
func checkTools(cfg config.Config) error {
	manim := cfg.ManimBinary
	if manim == "" {
		manim = "manim"
	}
	if _, err := exec.LookPath(manim); err != nil {
		return fmt.Errorf("%s not found: install with: pip install manim", manim)
	}
	if cfg.Narration.Provider != "" {
		for _, bin := range []string{"ffmpeg", "ffprobe"} {
			if _, err := exec.LookPath(bin); err != nil {
				return fmt.Errorf("%s not found (needed for narration): install FFmpeg", bin)
			}
		}
	}
	return nil
}

func runListVoices(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nAvailable voices:")
	for _, name := range tts.Providers() {
		voices, err := tts.AvailableVoices(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n  %s\n", strings.ToUpper(name))
		fmt.Fprintf(out, "  %s\n", strings.Repeat("─", 50))
		fmt.Fprintf(out, "  %-28s %-12s %-8s %s\n", "ID", "NAME", "GENDER", "DESCRIPTION")
		for _, v := range voices {
			def := ""
			if v.Default {
				def = " (default)"
			}
			fmt.Fprintf(out, "  %-28s %-12s %-8s %s%s\n", v.ID, v.Name, v.Gender, v.Description, def)
		}
	}
	fmt.Fprintln(out)
	return nil
}
