//go:build ignore

// Package main generates a synthetic bookmark corpus for benchmarking.
// Usage: go run scripts/generate-test-corpus.go -sources 1000 -output testdata/bench.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numSources = flag.Int("sources", 1000, "Number of sources to generate")
	outputPath = flag.String("output", "testdata/bench.json", "Output JSON file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
	paragraphs = flag.Int("paragraphs", 4, "Paragraphs of text per source")
)

// Topic vocabularies for plausible bookmark text.
var topics = []struct {
	name  string
	words []string
}{
	{"databases", []string{"index", "transaction", "replication", "query planner", "write-ahead log", "vacuum", "btree", "sharding"}},
	{"golang", []string{"goroutine", "channel", "context", "interface", "garbage collector", "scheduler", "escape analysis", "generics"}},
	{"cooking", []string{"sourdough", "fermentation", "hydration", "gluten", "proofing", "crumb", "starter", "autolyse"}},
	{"espresso", []string{"grind size", "extraction", "crema", "portafilter", "tamping", "pressure profiling", "dial in", "channeling"}},
	{"kubernetes", []string{"operator", "reconcile loop", "custom resource", "admission webhook", "etcd", "kubelet", "pod eviction", "finalizer"}},
	{"vectors", []string{"embedding", "cosine similarity", "dimension", "quantization", "recall", "ann index", "centroid", "reranking"}},
}

type sourceDoc struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	docs := make([]sourceDoc, 0, *numSources)
	for i := 0; i < *numSources; i++ {
		topic := topics[rng.Intn(len(topics))]
		docs = append(docs, sourceDoc{
			ID:    fmt.Sprintf("bench-%05d", i),
			Title: fmt.Sprintf("Notes on %s #%d", topic.name, i),
			URL:   fmt.Sprintf("https://example.com/%s/%d", topic.name, i),
			Text:  generateText(rng, topic.words, *paragraphs),
		})
	}

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output directory: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		fmt.Fprintf(os.Stderr, "write corpus: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d sources to %s\n", len(docs), *outputPath)
}

// generateText builds paragraphs mixing topic vocabulary with filler.
func generateText(rng *rand.Rand, words []string, paragraphs int) string {
	filler := []string{
		"in practice this means", "the key insight is", "a common mistake is",
		"benchmarks show that", "the documentation recommends", "after some digging",
		"it turns out that", "worth remembering that",
	}

	var sb strings.Builder
	for p := 0; p < paragraphs; p++ {
		sentences := 3 + rng.Intn(4)
		for s := 0; s < sentences; s++ {
			phrase := filler[rng.Intn(len(filler))]
			sb.WriteString(strings.ToUpper(phrase[:1]))
			sb.WriteString(phrase[1:])
			sb.WriteString(" ")
			sb.WriteString(words[rng.Intn(len(words))])
			sb.WriteString(" interacts with ")
			sb.WriteString(words[rng.Intn(len(words))])
			sb.WriteString(". ")
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
