//go:build ignore

// Package main generates a synthetic document corpus for exercising
// ctxsearch indexing and benchmarking retrieval latency.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of files to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"connection pooling", "retry backoff", "rate limiting",
	"schema migration", "cache invalidation", "incident response",
	"capacity planning", "log retention", "access control",
	"deployment rollback", "query optimization", "disaster recovery",
}

var sentences = []string{
	"The %s subsystem needs careful tuning before it ships to production.",
	"Our runbook for %s covers the common failure modes and their fixes.",
	"When %s misbehaves, check the audit log before restarting anything.",
	"The design review flagged %s as the main operational risk this quarter.",
	"Teams adopting %s should start with the default thresholds.",
	"Measurements show %s dominates tail latency under sustained load.",
	"The on-call guide documents how %s interacts with the storage layer.",
	"A postmortem last month traced the outage to misconfigured %s.",
}

var noteTemplate = `%s

%s
`

var mdTemplate = `# %s

## Overview

%s

## Checklist

- Review the current %s settings
- Compare against last quarter's baseline
- File follow-ups for anything unexplained

%s
`

var htmlTemplate = `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
<p>%s</p>
</body>
</html>
`

func paragraph(rng *rand.Rand, topic string, n int) string {
	var parts []string
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(sentences[rng.Intn(len(sentences))], topic))
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < *numFiles; i++ {
		topic := topics[rng.Intn(len(topics))]
		title := fmt.Sprintf("%s notes %d", titleCase(topic), i)
		sub := filepath.Join(*outputDir, fmt.Sprintf("team-%d", i%7))

		var name, content string
		switch i % 3 {
		case 0:
			name = fmt.Sprintf("doc-%04d.txt", i)
			content = fmt.Sprintf(noteTemplate, title, paragraph(rng, topic, 6))
		case 1:
			name = fmt.Sprintf("doc-%04d.md", i)
			content = fmt.Sprintf(mdTemplate, title, paragraph(rng, topic, 3), topic, paragraph(rng, topic, 4))
		case 2:
			name = fmt.Sprintf("doc-%04d.html", i)
			content = fmt.Sprintf(htmlTemplate, title, title, paragraph(rng, topic, 3), paragraph(rng, topic, 3))
		}

		if err := os.MkdirAll(sub, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create dir: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(filepath.Join(sub, name), []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write file: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d files under %s\n", *numFiles, *outputDir)
	fmt.Println("Index them with: ctxsearch index " + *outputDir)
}
