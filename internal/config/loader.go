package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// configDTO is the on-disk representation of Config. Durations are plain
// strings ("2s", "500ms") so both JSON and YAML files stay readable.
type configDTO struct {
	SeedURLs               []string `json:"seedUrls" yaml:"seedUrls"`
	AllowedHosts           []string `json:"allowedHosts,omitempty" yaml:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string `json:"allowedPathPrefix,omitempty" yaml:"allowedPathPrefix,omitempty"`
	MaxDepth               int      `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	MaxPages               int      `json:"maxPages,omitempty" yaml:"maxPages,omitempty"`
	Concurrency            int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	BaseDelay              string   `json:"baseDelay,omitempty" yaml:"baseDelay,omitempty"`
	Jitter                 string   `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	RandomSeed             int64    `json:"randomSeed,omitempty" yaml:"randomSeed,omitempty"`
	MaxAttempt             int      `json:"maxAttempt,omitempty" yaml:"maxAttempt,omitempty"`
	BackoffInitialDuration string   `json:"backoffInitialDuration,omitempty" yaml:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64  `json:"backoffMultiplier,omitempty" yaml:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     string   `json:"backoffMaxDuration,omitempty" yaml:"backoffMaxDuration,omitempty"`
	Timeout                string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	UserAgent              string   `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	InsecureTLS            bool     `json:"insecureTls,omitempty" yaml:"insecureTls,omitempty"`
	LinkAttributes         []string `json:"linkAttributes,omitempty" yaml:"linkAttributes,omitempty"`
	RejectExtensions       []string `json:"rejectExtensions,omitempty" yaml:"rejectExtensions,omitempty"`
	RejectQueryPatterns    []string `json:"rejectQueryPatterns,omitempty" yaml:"rejectQueryPatterns,omitempty"`
	ArchivePath            string   `json:"archivePath,omitempty" yaml:"archivePath,omitempty"`
	CompressArchive        bool     `json:"compressArchive,omitempty" yaml:"compressArchive,omitempty"`
	MirrorDir              string   `json:"mirrorDir,omitempty" yaml:"mirrorDir,omitempty"`
	IndexPath              string   `json:"indexPath,omitempty" yaml:"indexPath,omitempty"`
	DryRun                 bool     `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
}

// WithConfigFile loads a Config from a JSON or YAML file, dispatching on
// the file extension. Values absent from the file keep their defaults.
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}

	cfgDTO := configDTO{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(configContent, &cfgDTO)
	default:
		err = json.Unmarshal(configContent, &cfgDTO)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	seeds, err := parseSeedURLs(dto.SeedURLs)
	if err != nil {
		return Config{}, err
	}

	// Start with default config
	builder := WithDefault(seeds)

	if len(dto.AllowedHosts) > 0 {
		hosts := make(map[string]struct{}, len(dto.AllowedHosts))
		for _, h := range dto.AllowedHosts {
			if h != "" {
				hosts[h] = struct{}{}
			}
		}
		builder = builder.WithAllowedHosts(hosts)
	}
	if len(dto.AllowedPathPrefix) > 0 {
		builder = builder.WithAllowedPathPrefix(dto.AllowedPathPrefix)
	}

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		builder = builder.WithMaxDepth(dto.MaxDepth)
	}
	if dto.MaxPages != 0 {
		builder = builder.WithMaxPages(dto.MaxPages)
	}
	if dto.Concurrency != 0 {
		builder = builder.WithConcurrency(dto.Concurrency)
	}
	if dto.RandomSeed != 0 {
		builder = builder.WithRandomSeed(dto.RandomSeed)
	}
	if dto.MaxAttempt != 0 {
		builder = builder.WithMaxAttempt(dto.MaxAttempt)
	}
	if dto.BackoffMultiplier != 0 {
		builder = builder.WithBackoffMultiplier(dto.BackoffMultiplier)
	}
	if dto.UserAgent != "" {
		builder = builder.WithUserAgent(dto.UserAgent)
	}
	if len(dto.LinkAttributes) > 0 {
		builder = builder.WithLinkAttributes(dto.LinkAttributes)
	}
	if len(dto.RejectExtensions) > 0 {
		builder = builder.WithRejectExtensions(dto.RejectExtensions)
	}
	if len(dto.RejectQueryPatterns) > 0 {
		builder = builder.WithRejectQueryPatterns(dto.RejectQueryPatterns)
	}
	if dto.ArchivePath != "" {
		builder = builder.WithArchivePath(dto.ArchivePath)
	}
	if dto.MirrorDir != "" {
		builder = builder.WithMirrorDir(dto.MirrorDir)
	}
	if dto.IndexPath != "" {
		builder = builder.WithIndexPath(dto.IndexPath)
	}
	// Booleans use the DTO value as-is since their zero value is false
	builder = builder.WithInsecureTLS(dto.InsecureTLS)
	builder = builder.WithCompressArchive(dto.CompressArchive)
	builder = builder.WithDryRun(dto.DryRun)

	durations := []struct {
		raw   string
		field string
		apply func(time.Duration) *Config
	}{
		{dto.BaseDelay, "baseDelay", builder.WithBaseDelay},
		{dto.Jitter, "jitter", builder.WithJitter},
		{dto.BackoffInitialDuration, "backoffInitialDuration", builder.WithBackoffInitialDuration},
		{dto.BackoffMaxDuration, "backoffMaxDuration", builder.WithBackoffMaxDuration},
		{dto.Timeout, "timeout", builder.WithTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %s", ErrConfigParsingFail, d.field, err.Error())
		}
		builder = d.apply(parsed)
	}

	return builder.Build()
}

func parseSeedURLs(raw []string) ([]url.URL, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}
	seeds := make([]url.URL, 0, len(raw))
	for _, s := range raw {
		parsed, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: seed URL %q: %s", ErrInvalidConfig, s, err.Error())
		}
		seeds = append(seeds, *parsed)
	}
	return seeds, nil
}
