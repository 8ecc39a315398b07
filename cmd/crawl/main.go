// Package main provides the knowledge-crawler command line.
//
// Usage:
//
//	crawl run --depth 2 https://example.com
//	crawl predict --depth 2 https://example.com
//	crawl train --import history.csv
//
// See --help for all available options.
package main

func main() {
	Execute()
}
