package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/bartblaze/community/pkg/models"
	"github.com/spf13/viper"
)

// Config represents the evaluation configuration
type Config struct {
	// Evaluation settings
	Workers          int      `mapstructure:"workers"`           // number of signatures evaluated concurrently
	SignatureTimeout int      `mapstructure:"signature_timeout"` // per-signature limit (ms), 0 disables
	Enable           []string `mapstructure:"enable"`            // evaluate only these signatures
	Disable          []string `mapstructure:"disable"`           // never evaluate these signatures
	Categories       []string `mapstructure:"categories"`        // evaluate only signatures tagged with one of these
	MinSeverity      string   `mapstructure:"min_severity"`      // drop findings below this severity

	// Rule pack settings
	RulesPath      string `mapstructure:"rules_path"`       // directory of additional YAML rule packs
	NoBuiltinRules bool   `mapstructure:"no_builtin_rules"` // skip the embedded rule packs

	// Input settings
	MaxReportSize string   `mapstructure:"max_report_size"` // largest report file accepted
	Exclude       []string `mapstructure:"exclude"`         // directories to skip when walking

	// Report settings
	ReportFormat string `mapstructure:"report_format"` // console, json, text, markdown
	OutputFile   string `mapstructure:"output_file"`   // output file path

	// AI settings
	AI AIConfig `mapstructure:"ai"` // LLM triage of findings
}

// AIConfig holds AI triage configuration
type AIConfig struct {
	Enabled     bool   `mapstructure:"ai_enabled"`      // Enable AI triage
	Model       string `mapstructure:"ai_model"`        // Model: haiku, sonnet, opus
	APIToken    string `mapstructure:"ai_token"`        // Anthropic API token
	MaxFindings int    `mapstructure:"ai_max_findings"` // Cost control limit
	Timeout     int    `mapstructure:"ai_timeout"`      // Seconds per request
	QuickFilter bool   `mapstructure:"ai_quick_filter"` // Use Haiku for pre-filtering
	Language    string `mapstructure:"ai_language"`     // Report language: en, ru, es
}

// LoadConfig loads configuration from defaults, an optional config file and
// environment variables
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("workers", runtime.GOMAXPROCS(0))
	v.SetDefault("signature_timeout", 5000)
	v.SetDefault("min_severity", "info")
	v.SetDefault("rules_path", "")
	v.SetDefault("no_builtin_rules", false)
	v.SetDefault("max_report_size", "256M")
	v.SetDefault("exclude", []string{".git", "node_modules", "vendor"})
	v.SetDefault("report_format", "")

	// AI defaults
	v.SetDefault("ai.ai_enabled", false)
	v.SetDefault("ai.ai_model", "sonnet")
	v.SetDefault("ai.ai_max_findings", 50)
	v.SetDefault("ai.ai_timeout", 30)
	v.SetDefault("ai.ai_quick_filter", true)
	v.SetDefault("ai.ai_language", "en")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Read environment variables
	v.SetEnvPrefix("SANDSIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Timeout returns the per-signature timeout, zero when disabled
func (c *Config) Timeout() time.Duration {
	if c.SignatureTimeout <= 0 {
		return 0
	}
	return time.Duration(c.SignatureTimeout) * time.Millisecond
}

// MinSeverityLevel returns the minimum reported severity
func (c *Config) MinSeverityLevel() models.Severity {
	if c.MinSeverity == "" {
		return models.SeverityInfo
	}
	return models.ParseSeverity(c.MinSeverity)
}

// ShouldEvaluate determines if a signature is selected by the enable,
// disable and category lists
func (c *Config) ShouldEvaluate(meta *models.SignatureMeta) bool {
	if contains(c.Disable, meta.Name) {
		return false
	}
	if len(c.Enable) > 0 && !contains(c.Enable, meta.Name) {
		return false
	}
	if len(c.Categories) > 0 {
		for _, category := range c.Categories {
			if meta.HasCategory(category) {
				return true
			}
		}
		return false
	}
	return true
}

// contains checks membership ignoring case
func contains(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}
