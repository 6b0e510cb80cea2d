// Package main provides the entry point for the site-archiver CLI.
//
// site-archiver recursively crawls a website and records every fetched
// page into a WARC/1.1 archive, with an optional browsable local mirror.
//
// Usage:
//
//	site-archiver https://example.com --archive site.warc
//	site-archiver --config-file crawl.yaml
//
// See --help for all available options.
package main

import (
	cmd "github.com/rohmanhakim/site-archiver/internal/cli"
)

func main() {
	cmd.Execute()
}
