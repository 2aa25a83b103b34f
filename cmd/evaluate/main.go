package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/api"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/config"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/evaluation"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/filter"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/hermes"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/labeler"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/metrics"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/sample"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/search"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/slack"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/store"
)

const timeFlagLayout = "2006-01-02T15:04"

func main() {
	cfg := config.Load()
	logOut := &heldWriter{out: os.Stderr}
	setupLogging(cfg.LogLevel, logOut)

	os.Exit(run(os.Args[1:], cfg, os.Stdout, logOut))
}

// run returns the process exit code so deferred cleanup runs before exit.
func run(args []string, cfg config.Config, stdout io.Writer, logOut *heldWriter) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	var (
		name       = fs.String("name", "test_run", "dataset and run name")
		rule       = fs.String("rule", "apple lang:en", "search rule")
		start      = fs.String("start", "2016-07-25T00:00", "search start (UTC, "+timeFlagLayout+")")
		end        = fs.String("end", "2016-07-26T00:00", "search end (UTC, "+timeFlagLayout+")")
		maxResults = fs.Int("max", 1000, "maximum records to fetch")
		fetch      = fs.Bool("fetch", false, "refresh the dataset from the search API")
		serve      = fs.Bool("serve", false, "serve stored results over HTTP instead of running")
		results    = fs.String("results", "results", "directory for result JSON (empty to skip)")
		filterName = fs.String("filter", "apple-varieties", "downstream filter: apple-varieties, long-username or none")
		classify   = fs.String("classify", "apple-devices", "classifier: apple-devices, username-length or none")
		body       = fs.Bool("body-only", true, "show only the record body while labeling")
		seed       = fs.Int64("seed", 0, "sampling seed (0 picks one)")
		score      = fs.String("score", "", "score a file written by lblr and exit")
		scoreDelim = fs.String("score-delimiter", "", "field delimiter of the -score file (empty for JSON)")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *score != "" {
		if err := scoreFile(*score, *scoreDelim, stdout); err != nil {
			slog.Error("scoring failed", "file", *score, "error", err)
			return 1
		}
		return 0
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Database (optional, runs are only persisted when configured)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			return 1
		}
		slog.Info("database connected")
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		var err error
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			return 1
		}
		defer hermesClient.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	if *serve {
		return runServer(ctx, cfg, db, hermesClient)
	}

	startTime, err := time.Parse(timeFlagLayout, *start)
	if err != nil {
		slog.Error("invalid -start", "error", err)
		return 2
	}
	endTime, err := time.Parse(timeFlagLayout, *end)
	if err != nil {
		slog.Error("invalid -end", "error", err)
		return 2
	}

	evalCfg := evaluation.Config{
		Name:       *name,
		Rule:       *rule,
		Start:      startTime,
		End:        endTime,
		MaxResults: *maxResults,
		DataDir:    cfg.DataDir,
		ResultsDir: *results,
		Fetch:      *fetch,
		Sample:     sample.Config{Fraction: cfg.LabelFraction, Max: cfg.MaxToLabel, Project: sample.Identity},
		Seed:       *seed,
	}
	if *body {
		evalCfg.Sample.Project = sample.BodyOnly
	}
	if evalCfg.Filter, err = pickFilter(*filterName); err != nil {
		slog.Error("invalid -filter", "error", err)
		return 2
	}
	if evalCfg.Classifier, err = pickClassifier(*classify); err != nil {
		slog.Error("invalid -classify", "error", err)
		return 2
	}

	var deps evaluation.Deps
	if cfg.SearchEndpoint != "" {
		deps.Search = search.NewClient(cfg.SearchEndpoint, cfg.SearchUsername, cfg.SearchPassword, slog.Default())
	}
	if db != nil {
		deps.Store = db
	}
	if hermesClient != nil {
		deps.Events = hermesClient
	}
	// Slack poster (optional, summaries are only logged without it)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		deps.Slack = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		slog.Error("failed to create screen", "error", err)
		return 1
	}
	if err := screen.Init(); err != nil {
		slog.Error("failed to init screen", "error", err)
		return 1
	}
	logOut.Hold()
	lab := &evaluation.EngineLabeler{
		Options: cfg.LabelerOptions(),
		Keys:    labeler.NewScreenKeys(screen),
		Display: labeler.NewScreenDisplay(screen, cfg.LeftValue, cfg.RightValue),
		Logger:  slog.Default(),
	}

	res, err := evaluation.NewRunner(evalCfg, deps, lab, slog.Default()).Run(ctx)
	screen.Fini()
	logOut.Release()
	if hermesClient != nil {
		if ferr := hermesClient.Flush(context.WithoutCancel(ctx)); ferr != nil {
			slog.Warn("failed to flush events", "error", ferr)
		}
	}
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		return 1
	}

	for _, st := range res.Stages {
		fmt.Fprintf(stdout, "%s: %d records, %d labeled, metrics %v\n", st.Name, st.Summary.Count, st.Labeled, st.Metrics)
	}
	for _, class := range res.ClassNames() {
		fmt.Fprintf(stdout, "class %s: %d records\n", class, res.Classes[class].Count)
	}
	return 0
}

func runServer(ctx context.Context, cfg config.Config, db *store.Store, hermesClient *hermes.Client) int {
	var runs api.RunReader
	if db != nil {
		runs = db
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, runs)

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectRunCompleted, srv.HandleRunCompleted); err != nil {
			slog.Error("failed to subscribe to run events", "error", err)
			return 1
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	slog.Info("evaluation API ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server error", "error", err)
			return 1
		}
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
		return 1
	}
	return 0
}

// scoreFile computes metrics over a file written by lblr. An empty delim
// reads JSON lines; otherwise the last field of each row is the label.
func scoreFile(path, delim string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	src := record.NewJSONDecoder(f)
	if delim != "" {
		src = record.NewLabeledDelimitedDecoder(f, delim)
	}
	recs, err := record.Collect(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	m, err := metrics.Calculate(recs)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "%s: %d records\n", path, len(recs))
	for _, name := range names {
		fmt.Fprintf(w, "%s: %.4f\n", name, m[name])
	}
	return nil
}

func pickFilter(name string) (filter.Filter, error) {
	switch name {
	case "apple-varieties":
		return filter.AppleVarieties(), nil
	case "long-username":
		return filter.UsernameLengthFilter{Min: 9}, nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown filter %q", name)
}

func pickClassifier(name string) (filter.Classifier, error) {
	switch name {
	case "apple-devices":
		return filter.AppleDevices(), nil
	case "username-length":
		return filter.UsernameLengthClassifier{}, nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown classifier %q", name)
}

// heldWriter buffers log output while the screen owns the terminal.
type heldWriter struct {
	mu   sync.Mutex
	out  io.Writer
	buf  bytes.Buffer
	hold bool
}

func (w *heldWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hold {
		return w.buf.Write(p)
	}
	return w.out.Write(p)
}

func (w *heldWriter) Hold() {
	w.mu.Lock()
	w.hold = true
	w.mu.Unlock()
}

// Release writes everything held so far and stops buffering.
func (w *heldWriter) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hold = false
	_, _ = w.buf.WriteTo(w.out)
}

func setupLogging(level string, w io.Writer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
