// Package config loads the leaderboard configuration from YAML, the
// environment and, for the token, AWS Secrets Manager.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validTraceModes = []string{"off", "sampled", "detailed"}
)

// Config is the root application configuration.
type Config struct {
	GitHub      GitHubConfig
	Window      WindowConfig
	Leaderboard LeaderboardConfig
	Fetch       FetchConfig
	Render      RenderConfig
	Log         LogConfig
	Telemetry   TelemetryConfig
}

// GitHubConfig configures GitHub API access.
type GitHubConfig struct {
	Org        string
	APIBaseURL string
	GraphQLURL string
	// Token is never read from the YAML file.
	Token             string
	TokenSecret       string
	TokenSecretRegion string
}

// WindowConfig sets the lookback window.
type WindowConfig struct {
	Months int
}

// LeaderboardConfig holds the three top-N limits.
type LeaderboardConfig struct {
	OverallTopN    int
	PerRepoTopN    int
	EnrichTopRepos int
}

// FetchConfig configures fetching and throttling.
type FetchConfig struct {
	Concurrency           int
	PendingMaxAttempts    int
	PendingInitialBackoff time.Duration
	PendingMaxBackoff     time.Duration
	OrgQueryDelay         time.Duration
	RepoQueryDelay        time.Duration
}

// RenderConfig configures the SVG artifact.
type RenderConfig struct {
	OutputPath string
	FontSize   int
	LineHeight int
	Margin     int
	CharWidth  float64
	Background string
	Foreground string
}

// LogConfig configures logging.
type LogConfig struct {
	Level string
}

// TelemetryConfig configures tracing and the metrics textfile.
type TelemetryConfig struct {
	TraceMode        string
	TraceSampleRatio float64
	MetricsFile      string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := rawConfig{}.toConfig()
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from YAML and fills in defaults. It does not
// validate, because flags and the environment may still supply required values.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)
	return cfg, nil
}

// ApplyEnv overlays environment variables on c. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GITHUB_TOKEN"); ok && v != "" {
		c.GitHub.Token = v
	}
	if v, ok := lookup("GITHUB_ORG"); ok && v != "" {
		c.GitHub.Org = v
	}
	if v, ok := lookup("GITHUB_API_URL"); ok && v != "" {
		c.GitHub.APIBaseURL = v
	}
	if v, ok := lookup("GITHUB_GRAPHQL_URL"); ok && v != "" {
		c.GitHub.GraphQLURL = v
	}
	if v, ok := lookup("LEADERBOARD_MONTHS"); ok && v != "" {
		months, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse LEADERBOARD_MONTHS: %w", err)
		}
		c.Window.Months = months
	}
	return nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.GitHub.Org) == "" {
		errs = append(errs, "github.org is required")
	}
	if !isHTTPURL(c.GitHub.APIBaseURL) {
		errs = append(errs, "github.api_base_url must be an http(s) URL")
	}
	if !isHTTPURL(c.GitHub.GraphQLURL) {
		errs = append(errs, "github.graphql_url must be an http(s) URL")
	}

	if c.Window.Months < 1 {
		errs = append(errs, "window.months must be >= 1")
	}

	if c.Leaderboard.OverallTopN < 1 {
		errs = append(errs, "leaderboard.overall_top_n must be >= 1")
	}
	if c.Leaderboard.PerRepoTopN < 1 {
		errs = append(errs, "leaderboard.per_repo_top_n must be >= 1")
	}
	if c.Leaderboard.EnrichTopRepos < 0 {
		errs = append(errs, "leaderboard.enrich_top_repos must be >= 0")
	}

	if c.Fetch.Concurrency < 1 {
		errs = append(errs, "fetch.concurrency must be >= 1")
	}
	if c.Fetch.PendingMaxAttempts < 1 {
		errs = append(errs, "fetch.pending_max_attempts must be >= 1")
	}
	if c.Fetch.PendingInitialBackoff <= 0 {
		errs = append(errs, "fetch.pending_initial_backoff must be > 0")
	}
	if c.Fetch.PendingMaxBackoff < c.Fetch.PendingInitialBackoff {
		errs = append(errs, "fetch.pending_max_backoff must be >= fetch.pending_initial_backoff")
	}
	if c.Fetch.OrgQueryDelay < 0 || c.Fetch.RepoQueryDelay < 0 {
		errs = append(errs, "fetch query delays must be >= 0")
	}

	if strings.TrimSpace(c.Render.OutputPath) == "" {
		errs = append(errs, "render.output_path is required")
	}
	if c.Render.FontSize <= 0 || c.Render.LineHeight <= 0 || c.Render.CharWidth <= 0 {
		errs = append(errs, "render.font_size, render.line_height and render.char_width must be > 0")
	}
	if c.Render.Margin < 0 {
		errs = append(errs, "render.margin must be >= 0")
	}

	if !slices.Contains(validLogLevels, c.Log.Level) {
		errs = append(errs, "log.level must be one of debug|info|warn|error")
	}
	if !slices.Contains(validTraceModes, c.Telemetry.TraceMode) {
		errs = append(errs, "telemetry.trace_mode must be one of off|sampled|detailed")
	}
	if c.Telemetry.TraceSampleRatio < 0 || c.Telemetry.TraceSampleRatio > 1 {
		errs = append(errs, "telemetry.trace_sample_ratio must be within [0, 1]")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func applyDefaults(cfg *Config) {
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com/"
	}
	if cfg.GitHub.GraphQLURL == "" {
		cfg.GitHub.GraphQLURL = "https://api.github.com/graphql"
	}
	if cfg.Window.Months == 0 {
		cfg.Window.Months = 3
	}
	if cfg.Leaderboard.OverallTopN == 0 {
		cfg.Leaderboard.OverallTopN = 20
	}
	if cfg.Leaderboard.PerRepoTopN == 0 {
		cfg.Leaderboard.PerRepoTopN = 10
	}
	if cfg.Fetch.Concurrency == 0 {
		cfg.Fetch.Concurrency = 4
	}
	if cfg.Fetch.PendingMaxAttempts == 0 {
		cfg.Fetch.PendingMaxAttempts = 7
	}
	if cfg.Fetch.PendingInitialBackoff == 0 {
		cfg.Fetch.PendingInitialBackoff = 2 * time.Second
	}
	if cfg.Fetch.PendingMaxBackoff == 0 {
		cfg.Fetch.PendingMaxBackoff = 60 * time.Second
	}
	if cfg.Render.OutputPath == "" {
		cfg.Render.OutputPath = "leaderboard.svg"
	}
	if cfg.Render.FontSize == 0 {
		cfg.Render.FontSize = 14
	}
	if cfg.Render.LineHeight == 0 {
		cfg.Render.LineHeight = 18
	}
	if cfg.Render.CharWidth == 0 {
		cfg.Render.CharWidth = 8.4
	}
	if cfg.Render.Background == "" {
		cfg.Render.Background = "#0d1117"
	}
	if cfg.Render.Foreground == "" {
		cfg.Render.Foreground = "#c9d1d9"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Telemetry.TraceMode == "" {
		cfg.Telemetry.TraceMode = "off"
	}
}

// flexDuration is a YAML duration that also accepts day ("2d") and week ("1w")
// counts on top of time.ParseDuration syntax.
type flexDuration time.Duration

var longUnits = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

func (d *flexDuration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	parsed, err := parseDuration(text)
	if err != nil {
		return err
	}
	*d = flexDuration(parsed)
	return nil
}

func parseDuration(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	if parsed, err := time.ParseDuration(text); err == nil {
		return parsed, nil
	}

	unit, ok := longUnits[text[len(text)-1]]
	if !ok {
		return 0, fmt.Errorf("parse duration %q: invalid unit", text)
	}
	count, err := strconv.ParseFloat(text[:len(text)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", text, err)
	}
	total := count * float64(unit)
	if math.IsNaN(total) || total > math.MaxInt64 || total < math.MinInt64 {
		return 0, fmt.Errorf("parse duration %q: out of range", text)
	}
	return time.Duration(total), nil
}

type rawConfig struct {
	GitHub      rawGitHub      `yaml:"github"`
	Window      rawWindow      `yaml:"window"`
	Leaderboard rawLeaderboard `yaml:"leaderboard"`
	Fetch       rawFetch       `yaml:"fetch"`
	Render      rawRender      `yaml:"render"`
	Log         rawLog         `yaml:"log"`
	Telemetry   rawTelemetry   `yaml:"telemetry"`
}

type rawGitHub struct {
	Org               string `yaml:"org"`
	APIBaseURL        string `yaml:"api_base_url"`
	GraphQLURL        string `yaml:"graphql_url"`
	TokenSecret       string `yaml:"token_secret"`
	TokenSecretRegion string `yaml:"token_secret_region"`
}

type rawWindow struct {
	Months int `yaml:"months"`
}

type rawLeaderboard struct {
	OverallTopN int `yaml:"overall_top_n"`
	PerRepoTopN int `yaml:"per_repo_top_n"`
	// Pointers here and below keep an explicit 0 from being replaced by the default.
	EnrichTopRepos *int `yaml:"enrich_top_repos"`
}

type rawFetch struct {
	Concurrency           int           `yaml:"concurrency"`
	PendingMaxAttempts    int           `yaml:"pending_max_attempts"`
	PendingInitialBackoff flexDuration  `yaml:"pending_initial_backoff"`
	PendingMaxBackoff     flexDuration  `yaml:"pending_max_backoff"`
	OrgQueryDelay         *flexDuration `yaml:"org_query_delay"`
	RepoQueryDelay        *flexDuration `yaml:"repo_query_delay"`
}

type rawRender struct {
	OutputPath string  `yaml:"output_path"`
	FontSize   int     `yaml:"font_size"`
	LineHeight int     `yaml:"line_height"`
	Margin     *int    `yaml:"margin"`
	CharWidth  float64 `yaml:"char_width"`
	Background string  `yaml:"background"`
	Foreground string  `yaml:"foreground"`
}

type rawLog struct {
	Level string `yaml:"level"`
}

type rawTelemetry struct {
	TraceMode        string  `yaml:"trace_mode"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
	MetricsFile      string  `yaml:"metrics_file"`
}

func (r rawConfig) toConfig() *Config {
	cfg := &Config{
		GitHub: GitHubConfig{
			Org:               r.GitHub.Org,
			APIBaseURL:        r.GitHub.APIBaseURL,
			GraphQLURL:        r.GitHub.GraphQLURL,
			TokenSecret:       r.GitHub.TokenSecret,
			TokenSecretRegion: r.GitHub.TokenSecretRegion,
		},
		Window: WindowConfig{Months: r.Window.Months},
		Leaderboard: LeaderboardConfig{
			OverallTopN:    r.Leaderboard.OverallTopN,
			PerRepoTopN:    r.Leaderboard.PerRepoTopN,
			EnrichTopRepos: 5,
		},
		Fetch: FetchConfig{
			Concurrency:           r.Fetch.Concurrency,
			PendingMaxAttempts:    r.Fetch.PendingMaxAttempts,
			PendingInitialBackoff: time.Duration(r.Fetch.PendingInitialBackoff),
			PendingMaxBackoff:     time.Duration(r.Fetch.PendingMaxBackoff),
			OrgQueryDelay:         150 * time.Millisecond,
			RepoQueryDelay:        120 * time.Millisecond,
		},
		Render: RenderConfig{
			OutputPath: r.Render.OutputPath,
			FontSize:   r.Render.FontSize,
			LineHeight: r.Render.LineHeight,
			Margin:     16,
			CharWidth:  r.Render.CharWidth,
			Background: r.Render.Background,
			Foreground: r.Render.Foreground,
		},
		Log: LogConfig{Level: strings.ToLower(strings.TrimSpace(r.Log.Level))},
		Telemetry: TelemetryConfig{
			TraceMode:        strings.ToLower(strings.TrimSpace(r.Telemetry.TraceMode)),
			TraceSampleRatio: r.Telemetry.TraceSampleRatio,
			MetricsFile:      r.Telemetry.MetricsFile,
		},
	}
	if r.Leaderboard.EnrichTopRepos != nil {
		cfg.Leaderboard.EnrichTopRepos = *r.Leaderboard.EnrichTopRepos
	}
	if r.Render.Margin != nil {
		cfg.Render.Margin = *r.Render.Margin
	}
	if r.Fetch.OrgQueryDelay != nil {
		cfg.Fetch.OrgQueryDelay = time.Duration(*r.Fetch.OrgQueryDelay)
	}
	if r.Fetch.RepoQueryDelay != nil {
		cfg.Fetch.RepoQueryDelay = time.Duration(*r.Fetch.RepoQueryDelay)
	}
	return cfg
}
