package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Whitelisted hostnames. Empty means all hostnames are allowed
	// (unrestricted recursive fetch across hosts, the default).
	allowedHosts map[string]struct{}
	// Which URL path segments are permitted to be fetched and traversed. Empty means all paths.
	allowedPathPrefix []string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL.
	// The crawl is conceptually unbounded-depth; this caps practical recursion.
	maxDepth int
	// Maximum number of total pages allowed to be fetched. Zero means unlimited.
	maxPages int

	//===============
	// Politeness
	//===============
	// Maximum number of crawl worker goroutines processing URLs concurrently;
	// it does not control OS threads or CPU parallelism.
	concurrency int
	// Minimum, fixed waiting time enforced between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string
	// Whether to tolerate invalid or self-signed TLS certificates.
	// Certificates are verified unless this is explicitly enabled.
	insecureTLS bool
	// HTML attributes scanned for candidate links. Defaults to href only.
	linkAttributes []string

	//===============
	// Filter
	//===============
	// Path suffixes that are rejected before fetching (e.g. "png", "zip").
	rejectExtensions []string
	// Substrings which, when present in a URL query, reject the URL.
	rejectQueryPatterns []string

	//===============
	// Output
	//===============
	// Path of the append-only WARC archive file
	archivePath string
	// Whether each archive record is written as its own gzip member
	compressArchive bool
	// Root directory for the offline-browsable mirror. Empty disables the mirror.
	mirrorDir string
	// Path of the sqlite capture index. Empty places it next to the archive.
	indexPath string
	// Whether the program simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned by Build if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:               seedUrls,
		allowedHosts:           map[string]struct{}{},
		allowedPathPrefix:      []string{},
		maxDepth:               64,
		maxPages:               0,
		concurrency:            1,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             3,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                time.Second * 120,
		userAgent:              "site-archiver/1.0",
		insecureTLS:            false,
		linkAttributes:         []string{"href"},
		rejectExtensions:       []string{},
		rejectQueryPatterns:    []string{},
		archivePath:            "crawl.warc",
		compressArchive:        false,
		mirrorDir:              "",
		indexPath:              "",
		dryRun:                 false,
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithInsecureTLS(insecure bool) *Config {
	c.insecureTLS = insecure
	return c
}

func (c *Config) WithLinkAttributes(attrs []string) *Config {
	c.linkAttributes = attrs
	return c
}

func (c *Config) WithRejectExtensions(exts []string) *Config {
	c.rejectExtensions = exts
	return c
}

func (c *Config) WithRejectQueryPatterns(patterns []string) *Config {
	c.rejectQueryPatterns = patterns
	return c
}

func (c *Config) WithArchivePath(path string) *Config {
	c.archivePath = path
	return c
}

func (c *Config) WithCompressArchive(compress bool) *Config {
	c.compressArchive = compress
	return c
}

func (c *Config) WithMirrorDir(dir string) *Config {
	c.mirrorDir = dir
	return c
}

func (c *Config) WithIndexPath(path string) *Config {
	c.indexPath = path
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}
	for _, seed := range c.seedURLs {
		if seed.Scheme != "http" && seed.Scheme != "https" {
			return Config{}, fmt.Errorf("%w: seed URL %q must be http or https", ErrInvalidConfig, seed.String())
		}
		if seed.Host == "" {
			return Config{}, fmt.Errorf("%w: seed URL %q has no host", ErrInvalidConfig, seed.String())
		}
	}
	if c.maxDepth < 0 {
		return Config{}, fmt.Errorf("%w: maxDepth cannot be negative", ErrInvalidConfig)
	}
	if c.maxAttempt < 1 {
		return Config{}, fmt.Errorf("%w: maxAttempt must be at least 1", ErrInvalidConfig)
	}
	if c.concurrency < 1 {
		return Config{}, fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.archivePath == "" {
		return Config{}, fmt.Errorf("%w: archivePath cannot be empty", ErrInvalidConfig)
	}
	if len(c.linkAttributes) == 0 {
		c.linkAttributes = []string{"href"}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) InsecureTLS() bool {
	return c.insecureTLS
}

func (c Config) LinkAttributes() []string {
	attrs := make([]string, len(c.linkAttributes))
	copy(attrs, c.linkAttributes)
	return attrs
}

func (c Config) RejectExtensions() []string {
	exts := make([]string, len(c.rejectExtensions))
	copy(exts, c.rejectExtensions)
	return exts
}

func (c Config) RejectQueryPatterns() []string {
	patterns := make([]string, len(c.rejectQueryPatterns))
	copy(patterns, c.rejectQueryPatterns)
	return patterns
}

func (c Config) ArchivePath() string {
	return c.archivePath
}

func (c Config) CompressArchive() bool {
	return c.compressArchive
}

func (c Config) MirrorDir() string {
	return c.mirrorDir
}

func (c Config) IndexPath() string {
	return c.indexPath
}

func (c Config) DryRun() bool {
	return c.dryRun
}
