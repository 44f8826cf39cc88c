/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/mdtran/internal/detector"
	"github.com/valpere/mdtran/internal/engine"
	"github.com/valpere/mdtran/internal/markdown"
	"github.com/valpere/mdtran/internal/merger"
	"github.com/valpere/mdtran/internal/monitor"
	"github.com/valpere/mdtran/internal/progress"
	"github.com/valpere/mdtran/internal/splitter"
	"github.com/valpere/mdtran/internal/store"
	"github.com/valpere/mdtran/internal/translator"
)

var (
	inputFile  string
	outputFile string
	sourceLang string
	targetLang string

	chunkSize   int
	concurrency int
	maxRetries  int
	timeout     time.Duration

	instructions string

	dbPath  string
	noCache bool

	htmlOut bool
	verbose bool
	dryRun  bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a Markdown document",
	Long: `Translate a Markdown document chunk by chunk through an LLM
chat-completions endpoint.

The document is split at safe structural boundaries so code fences,
tables, lists and paragraphs are never torn apart. Chunks are translated
concurrently, every response is verified against the source before it
counts, and failed chunks keep their original text in the output.

The API key is taken from --api-key, the MDTRAN_API_KEY environment
variable, or api_key in the config file, in that order.

Example:
  mdtran translate -i README.md -t uk
  mdtran translate -i docs.md -t zh --chunk-size 1000 --concurrency 10
  mdtran translate -i notes.md -t de --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateInputFile(inputFile); err != nil {
			return err
		}
		if outputFile == "" {
			outputFile = defaultOutputPath(inputFile, targetLang)
			fmt.Fprintf(os.Stderr, "Using default output path: %s\n", outputFile)
		}
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		if chunkSize < 50 {
			fmt.Fprintf(os.Stderr, "Warning: very small chunk size (%d) may hurt translation quality\n", chunkSize)
		}
		if chunkSize > 5000 {
			fmt.Fprintf(os.Stderr, "Warning: large chunk size (%d) may cause API timeouts\n", chunkSize)
		}
		if concurrency > 20 {
			fmt.Fprintf(os.Stderr, "Warning: high concurrency (%d) may trigger API rate limiting\n", concurrency)
		}

		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		text := string(raw)

		if sourceLang == "auto" {
			det := detector.New()
			detected, ok := det.DetectDocument(text)
			if !ok {
				return fmt.Errorf("could not detect source language, pass --source explicitly")
			}
			sourceLang = detected
			fmt.Fprintf(os.Stderr, "Detected source language: %s\n", sourceLang)
		}

		split, err := splitter.New(chunkSize)
		if err != nil {
			return err
		}
		chunks := split.Split(text, inputFile)
		if len(chunks) == 0 {
			return fmt.Errorf("input file is empty")
		}

		model := viper.GetString("model")
		apiURL := viper.GetString("api_url")
		apiKey := viper.GetString("api_key")

		if verbose || dryRun {
			fmt.Printf("Configuration:\n")
			fmt.Printf("  Input file:  %s\n", inputFile)
			fmt.Printf("  Output file: %s\n", outputFile)
			fmt.Printf("  Languages:   %s -> %s\n", sourceLang, targetLang)
			fmt.Printf("  Chunk size:  %d\n", chunkSize)
			fmt.Printf("  Concurrency: %d\n", concurrency)
			fmt.Printf("  Model:       %s\n", model)
			fmt.Printf("  API URL:     %s\n", apiURL)
			fmt.Println()
		}

		if dryRun {
			printDryRun(raw, chunks)
			return nil
		}

		if apiKey == "" {
			fmt.Fprintln(os.Stderr, "No API key configured. Set one with --api-key, the MDTRAN_API_KEY")
			fmt.Fprintln(os.Stderr, "environment variable, or api_key in $HOME/.mdtran.yaml.")
			return fmt.Errorf("API key required")
		}
		checkAPIKey(apiURL, apiKey)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var db *store.Store
		var glossaryTerms map[string]string
		if !noCache && dbPath != "" {
			db, err = store.New(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if terms, gErr := db.GetGlossaryTerms(ctx, sourceLang, targetLang); gErr == nil && len(terms) > 0 {
				glossaryTerms = terms
				fmt.Fprintf(os.Stderr, "Loaded %d glossary terms for %s->%s\n", len(terms), sourceLang, targetLang)
			}
		}

		service := translator.NewOpenRouterService(translator.Config{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: apiURL,
			Timeout: timeout,
		})

		strategy := translator.DefaultStrategy()
		strategy.MaxRetries = maxRetries

		mon := monitor.New(0)
		mon.Start(0)
		defer mon.Stop()
		mon.RecordConcurrent(concurrency)

		opt := monitor.NewOptimizer(mon)
		if opt.ShouldPause() {
			fmt.Fprintln(os.Stderr, "Warning: system memory is nearly exhausted, consider lowering --concurrency")
		}

		tracker := progress.New(len(chunks), os.Stdout, verbose)

		checkpointDir := filepath.Join(filepath.Dir(inputFile), engine.CheckpointDirName)

		engCfg := engine.Config{
			Concurrency:   concurrency,
			SourceLang:    sourceLang,
			TargetLang:    targetLang,
			Model:         model,
			GlossaryTerms: glossaryTerms,
			Instructions:  instructions,
			Strategy:      strategy,
			CheckpointDir: checkpointDir,
			OnOutcome: func(o engine.Outcome) {
				mon.RecordChunk(o.Duration)
				if !o.FromCache {
					mon.RecordAPICall(o.Duration, o.Succeeded())
				}
				if o.Succeeded() {
					tracker.Completed(o.ChunkID, o.Duration, o.FromCache)
				} else {
					tracker.Failed(o.ChunkID, o.Error)
				}
			},
		}
		if db != nil {
			engCfg.Cache = db
		}

		eng, err := engine.New(service, engCfg)
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			sig := <-sigCh
			fmt.Fprintf(os.Stderr, "\nReceived %s, finishing in-flight chunks and writing a checkpoint...\n", sig)
			cancel()
		}()

		fmt.Printf("Translating %s: %d chunks, %s -> %s, model %s\n",
			filepath.Base(inputFile), len(chunks), sourceLang, targetLang, model)

		started := time.Now()
		outcomes := eng.TranslateChunks(ctx, chunks)
		tracker.Finish()
		mon.RecordThroughput(len(outcomes), time.Since(started))

		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "Translation interrupted. Checkpoint written under %s\n", checkpointDir)
			if db != nil {
				db.Close()
			}
			os.Exit(130)
		}

		res, err := merger.Merge(outcomes, outputFile)
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}

		stats := merger.Stats(outcomes)
		printStats(res, stats)

		if htmlOut {
			htmlPath, hErr := writeHTMLRender(outputFile)
			if hErr != nil {
				return hErr
			}
			fmt.Printf("HTML render: %s\n", htmlPath)
		}

		if verbose {
			printPerformance(mon, opt)
		}

		if stats.Failed > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d chunks failed and keep their original text in the output.\n", stats.Failed)
			return fmt.Errorf("failed to translate %d of %d chunks", stats.Failed, stats.TotalChunks)
		}
		return nil
	},
}

// printDryRun reports the document structure and chunk boundaries
// without touching the network.
func printDryRun(content []byte, chunks []splitter.Chunk) {
	docStats := markdown.Stats(content)
	fmt.Println("Dry run: no translation will be performed.")
	fmt.Println()
	fmt.Printf("Document structure:\n")
	fmt.Printf("  Headings:    %d\n", docStats.Headings)
	fmt.Printf("  Code blocks: %d\n", docStats.CodeBlocks)
	fmt.Printf("  Links:       %d\n", docStats.Links)
	fmt.Printf("  Images:      %d\n", docStats.Images)
	fmt.Printf("  Tables:      %d\n", docStats.Tables)
	fmt.Printf("  List items:  %d\n", docStats.ListItems)
	fmt.Println()
	fmt.Printf("Split into %d chunks:\n", len(chunks))
	for _, c := range chunks {
		fmt.Printf("  %s  lines %d-%d (%d lines)\n", c.ID, c.StartLine, c.EndLine-1, c.LineCount())
	}
}

func printStats(res *merger.Result, stats merger.AggregateStats) {
	fmt.Println()
	fmt.Println("Translation completed.")
	fmt.Printf("Output file: %s\n", res.OutputPath)
	fmt.Println()
	fmt.Printf("Statistics:\n")
	fmt.Printf("  Total chunks:      %d\n", stats.TotalChunks)
	fmt.Printf("  Successful:        %d\n", stats.Succeeded)
	fmt.Printf("  Failed:            %d\n", stats.Failed)
	fmt.Printf("  Cache hits:        %d\n", stats.CacheHits)
	fmt.Printf("  Success rate:      %.1f%%\n", stats.SuccessRate*100)
	fmt.Printf("  Total time:        %.2fs\n", stats.TotalElapsed.Seconds())
	fmt.Printf("  Average per chunk: %.2fs\n", stats.AverageElapsed.Seconds())
	fmt.Printf("  Source lines:      %d\n", stats.TotalSourceLines)
	fmt.Printf("  Output lines:      %d\n", res.FinalLineCount)
	fmt.Printf("  API calls (est.):  %d\n", stats.APICallEstimate)
	fmt.Printf("  Retries:           %d\n", stats.TotalRetries)
}

// printPerformance shows the monitor report plus tuning suggestions for
// the next run.
func printPerformance(mon *monitor.Monitor, opt *monitor.Optimizer) {
	report := mon.Report()
	rt := monitor.ReadRuntimeStats()

	fmt.Println()
	fmt.Printf("Performance:\n")
	fmt.Printf("  Avg API time:    %s\n", report.AvgAPITime.Round(time.Millisecond))
	fmt.Printf("  Median API time: %s\n", report.MedianAPITime.Round(time.Millisecond))
	fmt.Printf("  Max API time:    %s\n", report.MaxAPITime.Round(time.Millisecond))
	fmt.Printf("  Error rate:      %.1f%%\n", report.ErrorRatePercent)
	fmt.Printf("  Peak memory:     %.1f MB\n", report.PeakMemoryMB)
	fmt.Printf("  Heap in use:     %.1f MB\n", rt.HeapAllocMB)
	fmt.Printf("  Goroutines:      %d\n", rt.Goroutines)

	for _, rec := range report.Recommendations {
		fmt.Printf("  Note: %s\n", rec)
	}
	if s := opt.SuggestConcurrency(concurrency); s != concurrency {
		fmt.Printf("  Suggested concurrency for the next run: %d\n", s)
	}
	if s := opt.SuggestChunkSize(chunkSize); s != chunkSize {
		fmt.Printf("  Suggested chunk size for the next run: %d\n", s)
	}
}

// writeHTMLRender renders the merged Markdown document as a standalone
// HTML page next to the output file.
func writeHTMLRender(outputPath string) (string, error) {
	merged, err := os.ReadFile(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to read merged output: %w", err)
	}
	page := markdown.ToHTMLDocument(merged, filepath.Base(outputPath))
	htmlPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".html"
	if err := os.WriteFile(htmlPath, []byte(page), 0644); err != nil {
		return "", fmt.Errorf("failed to write HTML render: %w", err)
	}
	return htmlPath, nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input Markdown file to translate (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: <input>_<target>.<ext>)")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code (required)")

	translateCmd.Flags().IntVar(&chunkSize, "chunk-size", splitter.DefaultChunkSize, "Lines per chunk")
	translateCmd.Flags().IntVarP(&concurrency, "concurrency", "n", engine.DefaultConcurrency, "Concurrent translation requests")
	translateCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Retries per chunk after the first attempt")
	translateCmd.Flags().DurationVar(&timeout, "timeout", translator.DefaultTimeout, "Per-request timeout")

	translateCmd.Flags().String("model", translator.DefaultModel, "Completion model")
	translateCmd.Flags().String("api-url", translator.DefaultBaseURL, "Chat completions base URL")
	translateCmd.Flags().String("api-key", "", "API key (or MDTRAN_API_KEY)")
	translateCmd.Flags().StringVar(&instructions, "instructions", "", "Extra instructions appended to the translation prompt")

	translateCmd.Flags().StringVar(&dbPath, "db", "./data/mdtran.db", "Database path for the translation cache and glossary")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the translation cache")

	translateCmd.Flags().BoolVar(&htmlOut, "html", false, "Also write an HTML render of the translated document")
	translateCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Per-chunk progress detail and a performance report")
	translateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Split and report without translating")

	viper.BindPFlag("model", translateCmd.Flags().Lookup("model"))
	viper.BindPFlag("api_url", translateCmd.Flags().Lookup("api-url"))
	viper.BindPFlag("api_key", translateCmd.Flags().Lookup("api-key"))

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("target")
}
