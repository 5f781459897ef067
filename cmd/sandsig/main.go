package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/bartblaze/community/internal/ai"
	"github.com/bartblaze/community/internal/config"
	"github.com/bartblaze/community/internal/engine"
	"github.com/bartblaze/community/internal/extract"
	"github.com/bartblaze/community/internal/filesystem"
	"github.com/bartblaze/community/internal/report"
	"github.com/bartblaze/community/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorOrange = "\033[38;5;208m"
	colorYellow = "\033[38;5;220m"
	colorGray   = "\033[38;5;245m"
)

var (
	logger     *zap.Logger
	verbose    bool
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sandsig",
		Short: "sandsig - behavioral signature engine for sandbox reports",
		Long: `Evaluates behavioral detection signatures against malware sandbox analysis
reports and reports matched indicators, severities and ATT&CK techniques.`,
		Version: engine.Version,
		Run: func(cmd *cobra.Command, args []string) {
			printMainBanner()
			cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (yaml, json, toml)")

	// Disable built-in help command
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(signaturesCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(helpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initLogger builds a development logger when verbose, otherwise a JSON
// logger that only emits errors
func initLogger() error {
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.Config{
			Level:            zap.NewAtomicLevelAt(zapcore.ErrorLevel),
			Encoding:         "json",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig:    zap.NewProductionEncoderConfig(),
		}
		logger, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// printMainBanner prints the main banner
func printMainBanner() {
	fmt.Println()
	fmt.Printf("%s", colorOrange)
	fmt.Println("▄█████ ▄████▄ ███  ██ ████▄  ▄█████ ██ ▄████▄")
	fmt.Println("▀▀▀▄▄▄ ██▄▄██ ██ ▀▄██ ██  ██ ▀▀▀▄▄▄ ██ ██ ▄▄▄")
	fmt.Println("█████▀ ██  ██ ██   ██ ████▀  █████▀ ██ ▀████▀")
	fmt.Printf("%s", colorReset)
	fmt.Println()
	fmt.Printf("%sSignature Engine v%s%s\n", colorGray, engine.Version, colorReset)
	fmt.Println()
}

// evalCmd creates the eval command
func evalCmd() *cobra.Command {
	var (
		workers      int
		timeoutMs    int
		rulesPath    string
		noBuiltin    bool
		enable       []string
		disable      []string
		categories   []string
		minSeverity  string
		reportFormat string
		outputFile   string
		aiEnabled    bool
		aiModel      string
		aiToken      string
		aiLang       string
		assumeYes    bool
	)

	cmd := &cobra.Command{
		Use:   "eval <report|dir>",
		Short: "Evaluate signatures against analysis reports",
		Long: `Evaluate every selected signature against one analysis report, or against
every *.json report found under a directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFlags(reportFormat, minSeverity, aiModel, aiLang); err != nil {
				fmt.Printf("\n  %s✗ Invalid parameter:%s %s\n\n", colorRed, colorReset, err.Error())
				return err
			}

			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				logger.Error("Failed to load config", zap.Error(err))
				return err
			}

			// Override config with CLI flags
			if workers > 0 {
				cfg.Workers = workers
			}
			if cmd.Flags().Changed("timeout") {
				cfg.SignatureTimeout = timeoutMs
			}
			if rulesPath != "" {
				cfg.RulesPath = rulesPath
			}
			if noBuiltin {
				cfg.NoBuiltinRules = true
			}
			if len(enable) > 0 {
				cfg.Enable = enable
			}
			if len(disable) > 0 {
				cfg.Disable = disable
			}
			if len(categories) > 0 {
				cfg.Categories = categories
			}
			if minSeverity != "" {
				cfg.MinSeverity = minSeverity
			}
			if reportFormat != "" {
				cfg.ReportFormat = reportFormat
			}
			if outputFile != "" {
				cfg.OutputFile = outputFile
			}
			if aiEnabled {
				cfg.AI.Enabled = true
			}
			if aiModel != "" {
				cfg.AI.Model = aiModel
			}
			if aiToken != "" {
				cfg.AI.APIToken = aiToken
			}
			if aiLang != "" {
				cfg.AI.Language = aiLang
			}

			eng := engine.New(cfg, logger)
			if err := eng.RegisterBuiltins(); err != nil {
				logger.Error("Failed to register signatures", zap.Error(err))
				return err
			}

			if !assumeYes {
				eng.SetAIConfirmCallback(confirmAICost)
			}
			eng.SetProgressCallback(func(phase string, current, total int, message string) {
				if strings.HasPrefix(phase, "ai_") {
					fmt.Printf("  %sAI:%s %s\n", colorGray, colorReset, message)
				}
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			root, err := os.Stat(args[0])
			if err != nil {
				return err
			}

			generator := report.NewGenerator(cfg, logger)
			generator.SetPerReport(root.IsDir())
			walker := filesystem.NewWalker(cfg, logger)
			maxSize := filesystem.ParseSize(cfg.MaxReportSize)

			return walker.Walk(args[0], func(path string) error {
				analysis, err := filesystem.ReadReport(path, maxSize)
				if err != nil {
					logger.Error("Failed to read report", zap.String("path", path), zap.Error(err))
					fmt.Printf("  %s✗ %s:%s %v\n", colorRed, path, colorReset, err)
					return nil
				}

				results, triage, err := eng.Run(ctx, analysis)
				if err != nil {
					return err
				}

				reportPath, err := generator.Generate(results, triage)
				if err != nil {
					logger.Error("Failed to generate report", zap.Error(err))
					return err
				}
				if reportPath != "" {
					fmt.Printf("  %sReport:%s    %s%s%s\n", colorGray, colorReset, colorOrange, reportPath, colorReset)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Signatures evaluated concurrently (default: GOMAXPROCS)")
	cmd.Flags().IntVar(&timeoutMs, "timeout", 0, "Per-signature timeout in milliseconds, 0 disables")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Directory of additional YAML rule packs")
	cmd.Flags().BoolVar(&noBuiltin, "no-builtin-rules", false, "Skip the embedded rule packs")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "Evaluate only these signatures (comma-separated)")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "Skip these signatures (comma-separated)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "Evaluate only signatures in these categories")
	cmd.Flags().StringVar(&minSeverity, "min-severity", "", "Drop findings below: info, low, medium, high, critical")
	cmd.Flags().StringVarP(&reportFormat, "report", "r", "", "Report format: text, json, md (default: console output)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path")

	// AI flags
	cmd.Flags().BoolVar(&aiEnabled, "ai", false, "Enable AI triage of findings")
	cmd.Flags().StringVar(&aiModel, "ai-model", "", "AI model: haiku, sonnet, opus (default: sonnet)")
	cmd.Flags().StringVar(&aiToken, "ai-token", "", "Anthropic API token (or set ANTHROPIC_API_KEY)")
	cmd.Flags().StringVar(&aiLang, "ai-lang", "", "AI report language: en, ru, es, de (default: en)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the AI cost confirmation")

	return cmd
}

// confirmAICost shows the triage cost estimate and asks to proceed
func confirmAICost(estimate *ai.CostEstimate) bool {
	fmt.Printf("\n  %s%sAI Triage Cost Estimate%s\n", colorBold, colorRed, colorReset)
	fmt.Printf("  %sFindings:%s      %d\n", colorGray, colorReset, estimate.FindingsCount)
	fmt.Printf("  %sModel:%s         %s\n", colorGray, colorReset, estimate.Model)
	fmt.Printf("  %sQuick Filter:%s  %v\n", colorGray, colorReset, estimate.QuickFilter)
	fmt.Printf("  %sEst. Tokens:%s   ~%dk\n", colorGray, colorReset, estimate.EstimatedTokens/1000)
	fmt.Printf("  %sEst. Cost:%s     %s$%.2f%s\n\n", colorGray, colorReset, colorYellow, estimate.EstimatedCostUSD, colorReset)
	fmt.Printf("  %sProceed with AI triage? [Y/n]:%s ", colorBold, colorReset)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	input = strings.TrimSpace(strings.ToLower(input))
	return input == "" || input == "y" || input == "yes"
}

// validateFlags validates CLI flag values
func validateFlags(reportFormat, minSeverity, aiModel, aiLang string) error {
	if reportFormat != "" {
		validFormats := []string{"console", "text", "txt", "json", "md", "markdown"}
		if !contains(validFormats, reportFormat) {
			return fmt.Errorf("--report must be one of: %s (got: %s)", strings.Join(validFormats, ", "), reportFormat)
		}
	}

	if minSeverity != "" {
		validSeverities := []string{"info", "low", "medium", "high", "critical", "1", "2", "3", "4", "5"}
		if !contains(validSeverities, strings.ToLower(minSeverity)) {
			return fmt.Errorf("--min-severity must be one of: info, low, medium, high, critical (got: %s)", minSeverity)
		}
	}

	if aiModel != "" {
		validModels := []string{"haiku", "sonnet", "opus"}
		if !contains(validModels, aiModel) {
			return fmt.Errorf("--ai-model must be one of: %s (got: %s)", strings.Join(validModels, ", "), aiModel)
		}
	}

	if aiLang != "" {
		validLangs := []string{"en", "ru", "es", "de"}
		if !contains(validLangs, aiLang) {
			return fmt.Errorf("--ai-lang must be one of: %s (got: %s)", strings.Join(validLangs, ", "), aiLang)
		}
	}

	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// signaturesCmd creates the signatures command
func signaturesCmd() *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "Inspect available signatures",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered signatures",
		Long:  `Display every compiled-in signature and rule pack entry with its mode and severity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if rulesPath != "" {
				cfg.RulesPath = rulesPath
			}

			eng := engine.New(cfg, logger)
			if err := eng.RegisterBuiltins(); err != nil {
				return err
			}

			for _, d := range eng.Registry().All() {
				marker := "●"
				if !cfg.ShouldEvaluate(d.Meta) {
					marker = "○"
				}
				fmt.Printf("  %s %-45s %-8s %-8s %s\n", marker, d.Name(), d.Mode, d.Meta.Severity, strings.Join(d.Meta.Categories, ","))
			}
			fmt.Printf("\n  %d signatures\n", eng.Registry().Len())
			return nil
		},
	}
	list.Flags().StringVar(&rulesPath, "rules", "", "Directory of additional YAML rule packs")

	cmd.AddCommand(list)
	return cmd
}

// extractCmd creates the extract command
func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <family> <config.json>",
		Short: "Normalize a raw extracted malware configuration",
		Long: fmt.Sprintf(`Read a raw configuration recovered by a family decoder and print it in the
normalized schema. Families with dedicated converters: %s.`, strings.Join(extract.Families(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			raw, err := extract.Decode(f)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", args[1], err)
			}

			normalized, err := extract.Normalize(args[0], raw)
			if err != nil {
				return err
			}
			if normalized == nil {
				fmt.Fprintf(os.Stderr, "%s⚠ Empty configuration%s\n", colorYellow, colorReset)
				return nil
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(normalized)
		},
	}
}

// helpCmd creates a detailed help command
func helpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "help",
		Short: "Show detailed help and documentation",
		Run: func(cmd *cobra.Command, args []string) {
			printMainBanner()

			fmt.Printf("%s%sCOMMANDS%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  %seval <report|dir>%s                 Evaluate signatures against reports\n", colorBold, colorReset)
			fmt.Printf("  %ssignatures list%s                   List registered signatures\n", colorBold, colorReset)
			fmt.Printf("  %sextract <family> <config.json>%s    Normalize an extracted configuration\n\n", colorBold, colorReset)

			fmt.Printf("%s%sSEVERITY%s\n\n", colorBold, colorOrange, colorReset)
			for s := models.SeverityInfo; s <= models.SeverityCritical; s++ {
				fmt.Printf("  %d  %s\n", int(s), s)
			}
			fmt.Println()

			fmt.Printf("%s%sENVIRONMENT%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  Every configuration key can be set as SANDSIG_<KEY>, e.g.\n")
			fmt.Printf("  SANDSIG_WORKERS=8 or SANDSIG_SIGNATURE_TIMEOUT=2000.\n\n")

			fmt.Printf("%s%sEXAMPLES%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Println("  sandsig eval analyses/1234/report.json")
			fmt.Println("  sandsig eval --rules ./packs --min-severity medium analyses/")
			fmt.Println("  sandsig eval -r json -o out.json --disable packer_entropy report.json")
			fmt.Println("  sandsig extract RedLine config.json")
			fmt.Println()
		},
	}
}
