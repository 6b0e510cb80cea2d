package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/site-archiver/internal/config"
)

func writeTempConfig(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestWithConfigFile_JSON(t *testing.T) {
	path := writeTempConfig(t, "crawl.json", `{
		"seedUrls": ["https://example.com/docs"],
		"allowedHosts": ["example.com"],
		"maxDepth": 4,
		"maxPages": 200,
		"concurrency": 3,
		"baseDelay": "2s",
		"jitter": "250ms",
		"maxAttempt": 5,
		"timeout": "30s",
		"rejectExtensions": ["png", "zip"],
		"archivePath": "docs.warc",
		"compressArchive": true,
		"mirrorDir": "mirror"
	}`)

	cfg, err := config.WithConfigFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.SeedURLs(), 1)
	assert.Equal(t, "https://example.com/docs", cfg.SeedURLs()[0].String())
	assert.Contains(t, cfg.AllowedHosts(), "example.com")
	assert.Equal(t, 4, cfg.MaxDepth())
	assert.Equal(t, 200, cfg.MaxPages())
	assert.Equal(t, 3, cfg.Concurrency())
	assert.Equal(t, 2*time.Second, cfg.BaseDelay())
	assert.Equal(t, 250*time.Millisecond, cfg.Jitter())
	assert.Equal(t, 5, cfg.MaxAttempt())
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, []string{"png", "zip"}, cfg.RejectExtensions())
	assert.Equal(t, "docs.warc", cfg.ArchivePath())
	assert.True(t, cfg.CompressArchive())
	assert.Equal(t, "mirror", cfg.MirrorDir())
}

func TestWithConfigFile_YAML(t *testing.T) {
	path := writeTempConfig(t, "crawl.yaml", `
seedUrls:
  - https://example.com/
allowedPathPrefix:
  - /docs
maxDepth: 2
baseDelay: 500ms
archivePath: site.warc
rejectQueryPatterns:
  - sessionid=
dryRun: true
`)

	cfg, err := config.WithConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/docs"}, cfg.AllowedPathPrefix())
	assert.Equal(t, 2, cfg.MaxDepth())
	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelay())
	assert.Equal(t, "site.warc", cfg.ArchivePath())
	assert.Equal(t, []string{"sessionid="}, cfg.RejectQueryPatterns())
	assert.True(t, cfg.DryRun())
}

func TestWithConfigFile_UnsetFieldsKeepDefaults(t *testing.T) {
	path := writeTempConfig(t, "minimal.json", `{"seedUrls": ["https://example.com/"]}`)

	cfg, err := config.WithConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.MaxDepth())
	assert.Equal(t, time.Second, cfg.BaseDelay())
	assert.Equal(t, "crawl.warc", cfg.ArchivePath())
}

func TestWithConfigFile_MissingFile(t *testing.T) {
	_, err := config.WithConfigFile(filepath.Join(t.TempDir(), "no-such-file.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrFileDoesNotExist)
}

func TestWithConfigFile_MalformedContent(t *testing.T) {
	path := writeTempConfig(t, "broken.json", `{not valid json`)

	_, err := config.WithConfigFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigParsingFail)
}

func TestWithConfigFile_BadDuration(t *testing.T) {
	path := writeTempConfig(t, "badtime.json", `{
		"seedUrls": ["https://example.com/"],
		"baseDelay": "two seconds"
	}`)

	_, err := config.WithConfigFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigParsingFail)
}

func TestWithConfigFile_EmptySeeds(t *testing.T) {
	path := writeTempConfig(t, "noseeds.json", `{"maxDepth": 3}`)

	_, err := config.WithConfigFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
