package cmd

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rohmanhakim/site-archiver/internal/config"
	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/internal/scheduler"
)

var (
	cfgFile             string
	seedURLs            []string
	maxDepth            int
	maxPages            int
	concurrency         int
	retryCount          int
	timeout             time.Duration
	baseDelay           time.Duration
	jitter              time.Duration
	randomSeed          int64
	userAgent           string
	insecureTLS         bool
	linkAttributes      []string
	rejectExtensions    []string
	rejectQueryPatterns []string
	archivePath         string
	compressArchive     bool
	mirrorDir           string
	indexPath           string
	dryRun              bool
	allowedHosts        []string
	allowedPathPrefix   []string
)

// flagChanged reports whether a flag was explicitly set on the command
// line. Flags whose zero value is meaningful (an explicit --max-depth 0 is
// a seed-only crawl, --base-delay 0 disables the delay) need this to tell
// an explicit zero apart from an unset flag.
func flagChanged(name string) bool {
	flag := rootCmd.PersistentFlags().Lookup(name)
	return flag != nil && flag.Changed
}

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands.
// It is assigned in init() rather than at declaration to avoid an
// initialization cycle (RunE -> InitConfigWithError -> flagChanged -> rootCmd).
var rootCmd *cobra.Command

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "site-archiver [seed-url...]",
		Short: "A recursive web archiver producing WARC files.",
		Long: `site-archiver recursively crawls a website starting from one or more
seed URLs and records every fetched page into a WARC/1.1 archive, with an
optional browsable local mirror and a SQLite capture index.

The crawl is breadth-first, deduplicated, depth- and budget-capped, and
polite: per-host delays with jitter, and exponential backoff on transient
failures. Terminal fetch failures are recorded in the archive too, so the
output is a complete audit of the crawl.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			seeds := append([]string{}, seedURLs...)
			seeds = append(seeds, args...)
			if len(seeds) == 0 && cfgFile == "" {
				_ = cobraCmd.Usage()
				return fmt.Errorf("at least one seed URL is required (positional or --seed-url)")
			}

			var parsedURLs []url.URL
			if len(seeds) > 0 {
				var err error
				parsedURLs, err = parseSeedURLs(seeds)
				if err != nil {
					return err
				}
			}

			cfg, err := InitConfigWithError(parsedURLs)
			if err != nil {
				return err
			}

			cobraCmd.SilenceUsage = true
			return runCrawl(cobraCmd, cfg)
		},
	}
}

// runCrawl executes the crawl to completion. Per-URL failures are part of a
// normal run; only startup failures (unwritable archive, bad config)
// return an error and a non-zero exit.
func runCrawl(cobraCmd *cobra.Command, cfg config.Config) error {
	recorder := metadata.NewRecorder("main")

	crawlScheduler, err := scheduler.NewScheduler(cfg, &recorder, &recorder)
	if err != nil {
		return fmt.Errorf("error starting crawl: %w", err)
	}
	defer crawlScheduler.Close()

	ctx, stop := signal.NotifyContext(cobraCmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	execution, err := crawlScheduler.ExecuteCrawling(ctx)
	if err != nil {
		return fmt.Errorf("error executing crawl: %w", err)
	}

	out := cobraCmd.OutOrStdout()
	if ctx.Err() != nil {
		fmt.Fprintln(out, "Crawl interrupted; archive is valid up to the last record.")
	}
	fmt.Fprintf(out, "Pages archived: %d\n", execution.Stats.PagesArchived)
	fmt.Fprintf(out, "Pages failed: %d\n", execution.Stats.PagesFailed)
	fmt.Fprintf(out, "Pages filtered: %d\n", execution.Stats.PagesFiltered)
	fmt.Fprintf(out, "Duration: %v\n", execution.Stats.Duration.Round(time.Millisecond))
	if !cfg.DryRun() {
		fmt.Fprintf(out, "Archive: %s\n", cfg.ArchivePath())
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd = newRootCmd()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0, "maximum link depth from seed URL")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 for unlimited)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of concurrent fetch workers")
	rootCmd.PersistentFlags().IntVar(&retryCount, "retry-count", 0, "maximum fetch attempts per URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().StringArrayVar(&linkAttributes, "link-attr", []string{}, "HTML attributes to extract links from (defaults to href)")
	rootCmd.PersistentFlags().StringArrayVar(&rejectExtensions, "reject-ext", []string{}, "path extensions to skip, e.g. png, zip (can be repeated)")
	rootCmd.PersistentFlags().StringArrayVar(&rejectQueryPatterns, "reject-query", []string{}, "substrings that reject a URL when present in its query")
	rootCmd.PersistentFlags().StringVar(&archivePath, "archive", "", "output WARC file path")
	rootCmd.PersistentFlags().BoolVar(&compressArchive, "compress", false, "gzip each WARC record")
	rootCmd.PersistentFlags().StringVar(&mirrorDir, "mirror-dir", "", "directory for a browsable local mirror (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index", "", "SQLite capture index path (defaults to <archive>.db)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (empty means any host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "restrict crawl to paths like `/docs`, `/guide`")
}

// InitConfig reads in config file and flags. seedUrls must contain at least
// one valid URL unless a config file provides the seeds.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError reads in config file and flags, returning any errors.
// This makes it easier to test error cases.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	// Start with default config using provided seed URLs and apply overrides using method chaining
	configBuilder := config.WithDefault(seedUrls)

	if maxDepth > 0 || flagChanged("max-depth") {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}

	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if retryCount > 0 {
		configBuilder = configBuilder.WithMaxAttempt(retryCount)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if baseDelay > 0 || flagChanged("base-delay") {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 || flagChanged("jitter") {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if insecureTLS {
		configBuilder = configBuilder.WithInsecureTLS(insecureTLS)
	}

	if len(linkAttributes) > 0 {
		configBuilder = configBuilder.WithLinkAttributes(linkAttributes)
	}

	if len(rejectExtensions) > 0 {
		configBuilder = configBuilder.WithRejectExtensions(rejectExtensions)
	}

	if len(rejectQueryPatterns) > 0 {
		configBuilder = configBuilder.WithRejectQueryPatterns(rejectQueryPatterns)
	}

	if archivePath != "" {
		configBuilder = configBuilder.WithArchivePath(archivePath)
	}

	if compressArchive {
		configBuilder = configBuilder.WithCompressArchive(compressArchive)
	}

	if mirrorDir != "" {
		configBuilder = configBuilder.WithMirrorDir(mirrorDir)
	}

	if indexPath != "" {
		configBuilder = configBuilder.WithIndexPath(indexPath)
	}

	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}

	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	rootCmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
	})
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	maxPages = 0
	concurrency = 0
	retryCount = 0
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	userAgent = ""
	insecureTLS = false
	linkAttributes = []string{}
	rejectExtensions = []string{}
	rejectQueryPatterns = []string{}
	archivePath = ""
	compressArchive = false
	mirrorDir = ""
	indexPath = ""
	dryRun = false
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
}

// Test helper functions to set flag values from tests
func markFlagChangedForTest(name string) {
	if flag := rootCmd.PersistentFlags().Lookup(name); flag != nil {
		flag.Changed = true
	}
}

func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
	markFlagChangedForTest("max-depth")
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
	markFlagChangedForTest("base-delay")
}

func SetJitterForTest(j time.Duration) {
	jitter = j
	markFlagChangedForTest("jitter")
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetConcurrencyForTest(c int) {
	concurrency = c
}

func SetRetryCountForTest(attempts int) {
	retryCount = attempts
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetRejectExtensionsForTest(exts []string) {
	rejectExtensions = exts
}

func SetArchivePathForTest(path string) {
	archivePath = path
}

func SetMirrorDirForTest(dir string) {
	mirrorDir = dir
}

func SetDryRunForTest(d bool) {
	dryRun = d
}

func SetAllowedHostsForTest(hosts []string) {
	allowedHosts = hosts
}
