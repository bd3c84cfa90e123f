package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultComparePrompt = `You compare two versions of a legal or policy clause and report what changed.

Clause metadata:
%[1]s

Old clause:
%[2]s

New clause:
%[3]s

Rule-based hints (deterministic pre-check, treat as signals, not as truth):
%[4]s

Respond with ONLY a JSON object with these keys:
- "change_type": one of added, removed, modified, relocated, merged, split, unchanged
- "obligation_changes": list of {"entity", "old_obligation", "new_obligation", "severity"}
- "permission_changes": list of {"entity", "old_obligation", "new_obligation", "severity"}
- "numeric_changes": list of {"field", "old_value", "new_value", "significance"}
- "risk_level": one of low, medium, high
- "human_summary": one or two neutral sentences describing the change
- "confidence": number between 0 and 1
severity and significance are one of low, medium, high.
Describe the change only. Do not give legal advice and do not repeat personal data.`

	DefaultStrictPrompt = `

Your previous answer was rejected (%s).
Return ONLY the JSON object. Every key listed above is required, lists may be empty but must be present,
enum values must match exactly and confidence must be a number between 0 and 1.`
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type ComparisonPrompts struct {
	Compare string `toml:"compare"`
	Strict  string `toml:"strict"`
}

type ScoringConfig struct {
	EmbeddingWeight float64 `toml:"embedding_weight"`
	LexicalWeight   float64 `toml:"lexical_weight"`
	// JaccardWeight blends token Jaccard with normalized edit distance inside the lexical score.
	JaccardWeight float64 `toml:"jaccard_weight"`
}

type AlignmentConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	TopK                int     `toml:"top_k"`
	BoostBonus          float64 `toml:"boost_bonus"`
	IdenticalCutoff     float64 `toml:"identical_cutoff"`
	GroupThreshold      float64 `toml:"group_threshold"`
}

type ComparatorConfig struct {
	MaxRetries          int      `toml:"max_retries"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	FallbackConfidence  float64  `toml:"fallback_confidence"`
	OracleTimeout       string   `toml:"oracle_timeout"`
	CriticalChangeTypes []string `toml:"critical_change_types"`
}

func (c ComparatorConfig) OracleTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.OracleTimeout)
	return d
}

type RulesConfig struct {
	// Keywords maps each critical keyword to the severity reported when it appears or disappears.
	Keywords map[string]string `toml:"keywords"`
}

type ConcurrencyConfig struct {
	Workers         int     `toml:"workers"`
	EmbedWorkers    int     `toml:"embed_workers"`
	OracleRateLimit float64 `toml:"oracle_rate_limit"`
}

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Memgraph    MemgraphConfig    `toml:"memgraph"`
	Prompts     ComparisonPrompts `toml:"prompts"`
	Scoring     ScoringConfig     `toml:"scoring"`
	Alignment   AlignmentConfig   `toml:"alignment"`
	Comparator  ComparatorConfig  `toml:"comparator"`
	Rules       RulesConfig       `toml:"rules"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
}

func DefaultKeywords() map[string]string {
	return map[string]string{
		"must":       "high",
		"shall":      "high",
		"required":   "high",
		"prohibited": "high",
		"penalty":    "medium",
		"fine":       "medium",
	}
}

// Default returns a configuration with every tunable at its documented default.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values. Weights are only defaulted as a pair so an
// explicit 1.0/0.0 split survives.
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
		if c.LLM.Model == "" {
			c.LLM.Model = "gpt-oss:latest"
		}
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = "http://localhost:11434"
		}
	}
	if c.Prompts.Compare == "" {
		c.Prompts.Compare = DefaultComparePrompt
	}
	if c.Prompts.Strict == "" {
		c.Prompts.Strict = DefaultStrictPrompt
	}
	if c.Scoring.EmbeddingWeight == 0 && c.Scoring.LexicalWeight == 0 {
		c.Scoring.EmbeddingWeight = 0.7
		c.Scoring.LexicalWeight = 0.3
	}
	if c.Scoring.JaccardWeight == 0 {
		c.Scoring.JaccardWeight = 0.5
	}
	if c.Alignment.SimilarityThreshold == 0 {
		c.Alignment.SimilarityThreshold = 0.78
	}
	if c.Alignment.TopK == 0 {
		c.Alignment.TopK = 3
	}
	if c.Alignment.BoostBonus == 0 {
		c.Alignment.BoostBonus = 0.15
	}
	if c.Alignment.IdenticalCutoff == 0 {
		c.Alignment.IdenticalCutoff = 0.995
	}
	if c.Alignment.GroupThreshold == 0 {
		c.Alignment.GroupThreshold = 0.80
	}
	if c.Comparator.MaxRetries == 0 {
		c.Comparator.MaxRetries = 2
	}
	if c.Comparator.ConfidenceThreshold == 0 {
		c.Comparator.ConfidenceThreshold = 0.6
	}
	if c.Comparator.FallbackConfidence == 0 {
		c.Comparator.FallbackConfidence = 0.4
	}
	if c.Comparator.OracleTimeout == "" {
		c.Comparator.OracleTimeout = "30s"
	}
	if c.Comparator.CriticalChangeTypes == nil {
		c.Comparator.CriticalChangeTypes = []string{"removed"}
	}
	if len(c.Rules.Keywords) == 0 {
		c.Rules.Keywords = DefaultKeywords()
	}
	if c.Concurrency.Workers == 0 {
		c.Concurrency.Workers = 4
	}
	if c.Concurrency.EmbedWorkers == 0 {
		c.Concurrency.EmbedWorkers = 8
	}
}

// ApplyEnv overrides values with environment variables when present.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		c.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("REDLINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency.Workers = n
		}
	}
}

func (c *Config) Validate() error {
	if c.Scoring.EmbeddingWeight < 0 || c.Scoring.LexicalWeight < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if sum := c.Scoring.EmbeddingWeight + c.Scoring.LexicalWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("embedding_weight + lexical_weight must equal 1, got %.3f", sum)
	}
	if c.Scoring.JaccardWeight < 0 || c.Scoring.JaccardWeight > 1 {
		return fmt.Errorf("jaccard_weight must be in [0,1]")
	}
	if !unit(c.Alignment.SimilarityThreshold) || !unit(c.Alignment.IdenticalCutoff) || !unit(c.Alignment.GroupThreshold) {
		return fmt.Errorf("alignment thresholds must be in [0,1]")
	}
	if c.Alignment.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.Alignment.TopK)
	}
	if c.Alignment.BoostBonus < 0 || c.Alignment.BoostBonus > 1 {
		return fmt.Errorf("boost_bonus must be in [0,1]")
	}
	if c.Comparator.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if !unit(c.Comparator.ConfidenceThreshold) || !unit(c.Comparator.FallbackConfidence) {
		return fmt.Errorf("confidence values must be in [0,1]")
	}
	if d, err := time.ParseDuration(c.Comparator.OracleTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid oracle_timeout %q", c.Comparator.OracleTimeout)
	}
	for _, ct := range c.Comparator.CriticalChangeTypes {
		if !slices.Contains(changeTypes, ct) {
			return fmt.Errorf("unknown critical change type %q", ct)
		}
	}
	for kw, sev := range c.Rules.Keywords {
		if sev != "low" && sev != "medium" && sev != "high" {
			return fmt.Errorf("keyword %q has invalid severity %q", kw, sev)
		}
	}
	if c.Concurrency.Workers < 1 || c.Concurrency.EmbedWorkers < 1 {
		return fmt.Errorf("worker counts must be positive")
	}
	if c.Concurrency.OracleRateLimit < 0 {
		return fmt.Errorf("oracle_rate_limit must not be negative")
	}
	return nil
}

// Clone copies the reference-typed fields so snapshots never share state.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Comparator.CriticalChangeTypes = slices.Clone(c.Comparator.CriticalChangeTypes)
	cp.Rules.Keywords = maps.Clone(c.Rules.Keywords)
	return &cp
}

var changeTypes = []string{"added", "removed", "modified", "relocated", "merged", "split", "unchanged"}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
