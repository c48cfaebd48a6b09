// Package main provides the got-ingest CLI for converting books into chunk
// files and querying them offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bull/got-explorer/internal/app"
	"github.com/bull/got-explorer/internal/config"
	"github.com/bull/got-explorer/internal/corpus"
	ghclient "github.com/bull/got-explorer/internal/github"
	"github.com/bull/got-explorer/internal/ingest"
	"github.com/bull/got-explorer/internal/logging"
	"github.com/bull/got-explorer/internal/rag"
	"github.com/bull/got-explorer/internal/respond"
)

var (
	configFile string

	inputDir      string
	outputDir     string
	markdownDir   string
	markdownStyle string
	maxChunkSize  int
	githubRepo    string
	githubPath    string
	githubRef     string

	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "got-ingest",
	Short: "A Song of Ice and Fire book ingestion tool",
	Long:  "CLI tool for converting book files into retrieval chunks and checking the result",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			configFile = os.Getenv("CONFIG_FILE")
		}
		return nil
	},
	SilenceUsage: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert book files into chunk files",
	Long: `Reads every supported book file (.txt, .md, .html, .epub, .pdf) from a local
directory or a GitHub repository and writes one JSON chunk file per book.

Environment variables:
  CHUNKS_DIR      Output directory (default: output/rag_chunks)
  MAX_CHUNK_SIZE  Maximum chunk length in characters (default: 512)
  GITHUB_TOKEN    GitHub token for higher rate limits (optional)
  GITHUB_API_URL  GitHub Enterprise server URL (optional)`,
	RunE: runConvert,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the chunk files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the chunk files",
	RunE:  runInspect,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default $CONFIG_FILE)")

	convertCmd.Flags().StringVarP(&inputDir, "input", "i", "input", "directory of book files")
	convertCmd.Flags().StringVarP(&outputDir, "output", "o", "", "chunk file directory (default from config)")
	convertCmd.Flags().StringVar(&markdownDir, "markdown-dir", "", "also write a markdown rendition of each book here")
	convertCmd.Flags().StringVar(&markdownStyle, "markdown-style", "plain", "markdown layout: plain or structured")
	convertCmd.Flags().IntVar(&maxChunkSize, "max-chunk-size", 0, "maximum chunk length (default from config)")
	convertCmd.Flags().StringVar(&githubRepo, "github", "", "read books from a GitHub repository (owner/repo) instead of --input")
	convertCmd.Flags().StringVar(&githubPath, "github-path", "", "directory inside the GitHub repository")
	convertCmd.Flags().StringVar(&githubRef, "github-ref", "", "branch, tag or commit (default branch if empty)")

	askCmd.Flags().StringVar(&sessionID, "session", "", "session id for follow-up questions")

	rootCmd.AddCommand(convertCmd, askCmd, inspectCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.Setup(cfg.Log.Level, cfg.Log.Format), nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()
	start := time.Now()

	if outputDir == "" {
		outputDir = cfg.Corpus.ChunksDir
	}
	if maxChunkSize <= 0 {
		maxChunkSize = cfg.Corpus.MaxChunkSize
	}

	style, err := ingest.ParseMarkdownStyle(markdownStyle)
	if err != nil {
		return err
	}

	source, revision, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Println("Starting conversion...")
	fmt.Printf("  Source: %s\n", source)
	fmt.Printf("  Output: %s\n", outputDir)
	if revision != "" {
		fmt.Printf("  Commit: %s\n", revision)
	}
	fmt.Println()

	var exporter *ingest.MarkdownExporter
	if markdownDir != "" {
		exporter = ingest.NewMarkdownExporter(markdownDir, style)
	}
	pipeline := ingest.NewPipeline(
		source,
		ingest.NewIngestor(ingest.NewChunker(maxChunkSize)),
		corpus.NewStore(outputDir, logger),
		exporter,
		logger,
	)

	result, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Conversion complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

type describedSource interface {
	ingest.Source
	fmt.Stringer
}

type dirSource struct{ *ingest.DirSource }

func (d dirSource) String() string { return d.Root }

func openSource(ctx context.Context, cfg *config.Config) (describedSource, string, error) {
	if githubRepo == "" {
		if _, err := os.Stat(inputDir); err != nil {
			return nil, "", fmt.Errorf("input directory: %w", err)
		}
		return dirSource{ingest.NewDirSource(inputDir)}, "", nil
	}

	owner, repo, ok := strings.Cut(githubRepo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, "", fmt.Errorf("--github must be owner/repo, got %q", githubRepo)
	}
	client, err := ghclient.NewClient(ghclient.ClientOptions{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create GitHub client: %w", err)
	}
	src := ghclient.NewSource(client, ghclient.RepoConfig{
		Owner: owner,
		Repo:  repo,
		Path:  githubPath,
		Ref:   githubRef,
	})

	// the revision is informational only
	sha, _ := src.Revision(ctx)
	return src, sha, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	a := app.New(cfg, logger)
	defer a.Close()

	engine, stats, err := a.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if stats.Fallback {
		fmt.Println("(no chunk files found, answering from built-in passages)")
	}

	out, err := answer(ctx, engine, sessionID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// answer renders the reply to question followed by its sources.
func answer(ctx context.Context, engine *rag.Engine, session, question string) (string, error) {
	res, err := engine.Ask(ctx, session, question)
	if errors.Is(err, rag.ErrEmptyQuery) {
		return respond.EmptyQuestionMessage + "\n", nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(res.Answer)
	b.WriteString("\n")
	if len(res.Hits) > 0 {
		b.WriteString("\nSources:\n")
		for _, h := range res.Hits {
			fmt.Fprintf(&b, "  - %s, %s (score %.3f)\n", h.Chunk.Metadata.BookTitle, h.Chunk.Metadata.Chapter, h.Score)
		}
	}
	return b.String(), nil
}

// bookSummary is one row of the inspect report.
type bookSummary struct {
	Title    string
	Chunks   int
	Chapters int
	AvgLen   int
}

func summarize(collections []corpus.Collection) []bookSummary {
	out := make([]bookSummary, 0, len(collections))
	for _, c := range collections {
		chapters := make(map[string]struct{})
		total := 0
		for _, ch := range c.Chunks {
			chapters[ch.Metadata.Chapter] = struct{}{}
			total += len([]rune(ch.Content))
		}
		s := bookSummary{Title: c.BookTitle, Chunks: len(c.Chunks), Chapters: len(chapters)}
		if s.Chunks > 0 {
			s.AvgLen = total / s.Chunks
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store := corpus.NewStore(cfg.Corpus.ChunksDir, logger)
	collections, err := store.LoadAll()
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		fmt.Printf("No chunk files in %s\n", store.Dir())
		return nil
	}

	fmt.Printf("Chunk files in %s:\n", store.Dir())
	total := 0
	for _, s := range summarize(collections) {
		fmt.Printf("  %-40s %6d chunks  %4d chapters  avg %d chars\n", s.Title, s.Chunks, s.Chapters, s.AvgLen)
		total += s.Chunks
	}
	fmt.Println()
	fmt.Printf("Total: %d chunks in %d books\n", total, len(collections))
	if cfg.Corpus.MaxTotalChunks > 0 || cfg.Corpus.ChunksPerSource > 0 {
		fmt.Printf("Serving limits: max total %d, per book %d\n", cfg.Corpus.MaxTotalChunks, cfg.Corpus.ChunksPerSource)
	}
	return nil
}
