package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/dataset"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/describe"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/filter"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/hermes"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/metrics"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/sample"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/search"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/slack"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/store"
)

const (
	StageRaw      = "raw"
	StageFiltered = "filtered"
)

// Config holds one evaluation run's settings.
type Config struct {
	Name       string
	Rule       string
	Start      time.Time
	End        time.Time
	MaxResults int
	DataDir    string
	ResultsDir string // optional: write the result as JSON here
	Fetch      bool   // refresh the dataset from search before reading it
	Sample     sample.Config
	Filter     filter.Filter     // optional downstream filter
	Classifier filter.Classifier // optional segmentation
	Seed       int64
}

type Fetcher interface {
	Fetch(ctx context.Context, q search.Query, fn func(raw []byte) error) (int, error)
}

type RunStore interface {
	CreateRun(ctx context.Context, name, rule string) (uuid.UUID, error)
	WriteLabeled(ctx context.Context, runID uuid.UUID, stage string, recs []record.Record) (int, error)
	FinishRun(ctx context.Context, id uuid.UUID, status string, metrics map[string]float64) error
}

type Publisher interface {
	Publish(subject string, data any) error
}

type Notifier interface {
	PostSummary(ctx context.Context, text string) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Deps are the optional collaborators of a run. Nil fields are skipped.
type Deps struct {
	Search Fetcher
	Store  RunStore
	Events Publisher
	Slack  Notifier
}

type StageResult struct {
	Name     string             `json:"name"`
	Summary  describe.Summary   `json:"summary"`
	Labeled  int                `json:"labeled"`
	Complete bool               `json:"complete"`
	Metrics  map[string]float64 `json:"metrics"`
}

type Result struct {
	RunID   uuid.UUID                   `json:"run_id"`
	Name    string                      `json:"name"`
	Rule    string                      `json:"rule"`
	Records int                         `json:"records"`
	Stages  []StageResult               `json:"stages"`
	Classes map[string]describe.Summary `json:"classes,omitempty"`
	Aborted bool                        `json:"aborted"`
}

// FlatMetrics keys every stage metric as "<stage>.<metric>".
func (r *Result) FlatMetrics() map[string]float64 {
	out := make(map[string]float64)
	for _, s := range r.Stages {
		for k, v := range s.Metrics {
			out[s.Name+"."+k] = v
		}
	}
	return out
}

// Runner orchestrates fetch, describe, label, filter and classify.
type Runner struct {
	cfg     Config
	deps    Deps
	labeler Labeler
	rng     *rand.Rand
	logger  *slog.Logger
}

func NewRunner(cfg Config, deps Deps, l Labeler, logger *slog.Logger) *Runner {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Runner{
		cfg:     cfg,
		deps:    deps,
		labeler: l,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  logger,
	}
}

// Run executes the evaluation. An operator quitting mid-stage ends labeling
// for the rest of the run but the descriptive stages still complete.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{Name: r.cfg.Name, Rule: r.cfg.Rule}

	if r.deps.Store != nil {
		id, err := r.deps.Store.CreateRun(ctx, r.cfg.Name, r.cfg.Rule)
		if err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		res.RunID = id
	} else {
		res.RunID = uuid.New()
	}
	logger := r.logger.With("run_id", res.RunID.String(), "name", r.cfg.Name)

	err := r.run(ctx, res, logger)
	status := store.StatusComplete
	switch {
	case err != nil:
		status = store.StatusFailed
	case res.Aborted:
		status = store.StatusAborted
	}
	if r.deps.Store != nil {
		// Use a fresh context so a cancelled run is still closed out.
		if ferr := r.deps.Store.FinishRun(context.WithoutCancel(ctx), res.RunID, status, res.FlatMetrics()); ferr != nil {
			err = errors.Join(err, fmt.Errorf("finish run: %w", ferr))
		}
	}
	if err != nil {
		return res, err
	}

	r.publish(hermes.SubjectRunCompleted, hermes.RunCompleted{
		RunID:      res.RunID.String(),
		Name:       res.Name,
		Rule:       res.Rule,
		Status:     status,
		Metrics:    res.FlatMetrics(),
		Records:    res.Records,
		FinishedAt: time.Now().UTC(),
	}, logger)
	r.notify(ctx, res, logger)

	if r.cfg.ResultsDir != "" {
		if err := writeResult(r.cfg.ResultsDir, res); err != nil {
			return res, err
		}
	}

	logger.Info("evaluation complete", "records", res.Records, "aborted", res.Aborted)
	return res, nil
}

func (r *Runner) run(ctx context.Context, res *Result, logger *slog.Logger) error {
	recs, err := r.records(ctx, logger)
	if err != nil {
		return err
	}
	res.Records = len(recs)

	stage, err := r.stage(ctx, res, StageRaw, recs, logger)
	if err != nil {
		return err
	}
	res.Stages = append(res.Stages, stage)

	if r.cfg.Filter != nil {
		filtered := filter.Apply(recs, r.cfg.Filter)
		stage, err := r.stage(ctx, res, StageFiltered, filtered, logger)
		if err != nil {
			return err
		}
		res.Stages = append(res.Stages, stage)
	}

	if r.cfg.Classifier != nil {
		res.Classes = make(map[string]describe.Summary)
		for class, members := range filter.Partition(recs, r.cfg.Classifier) {
			s := describe.Describe(members)
			res.Classes[class] = s
			logger.Info("class described", s.LogArgs("class:"+class)...)
		}
	}
	return nil
}

// records reads the named dataset, refreshing it from search first when asked
// or when it has never been saved and a search client is available.
func (r *Runner) records(ctx context.Context, logger *slog.Logger) ([][]byte, error) {
	path := dataset.Path(r.cfg.DataDir, r.cfg.Name)

	if r.cfg.Fetch || (r.deps.Search != nil && !dataset.Exists(path)) {
		if r.deps.Search == nil {
			return nil, errors.New("fetch requested but no search client configured")
		}
		q := search.Query{
			Rule:       r.cfg.Rule,
			Start:      r.cfg.Start,
			End:        r.cfg.End,
			MaxResults: r.cfg.MaxResults,
		}
		n, err := dataset.Save(path, func(emit func([]byte) error) (int, error) {
			return r.deps.Search.Fetch(ctx, q, emit)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch dataset: %w", err)
		}
		logger.Info("dataset saved", "path", path, "records", n)
	}

	recs, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset loaded", "path", path, "records", len(recs))
	return recs, nil
}

func (r *Runner) stage(ctx context.Context, res *Result, name string, recs [][]byte, logger *slog.Logger) (StageResult, error) {
	out := StageResult{Name: name, Summary: describe.Describe(recs), Metrics: map[string]float64{}}
	logger.Info("stage described", out.Summary.LogArgs(name)...)

	if res.Aborted {
		logger.Info("skipping labeling after operator quit", "stage", name)
		return out, nil
	}

	picks, err := sample.Select(recs, r.cfg.Sample, r.rng)
	if err != nil {
		return out, fmt.Errorf("sample %s: %w", name, err)
	}
	if len(picks) == 0 {
		logger.Info("nothing sampled for labeling", "stage", name)
		out.Complete = true
		return out, nil
	}

	labeled, complete, err := r.labeler.Label(ctx, name, picks)
	if err != nil {
		return out, err
	}
	out.Complete = complete
	res.Aborted = !complete
	for _, rec := range labeled {
		if _, ok := rec.Label(); ok {
			out.Labeled++
		}
	}

	if r.deps.Store != nil && len(labeled) > 0 {
		if _, err := r.deps.Store.WriteLabeled(ctx, res.RunID, name, labeled); err != nil {
			return out, fmt.Errorf("store %s labels: %w", name, err)
		}
	}
	r.publish(hermes.SubjectLabelsFlushed, hermes.LabelsFlushed{
		RunID:    res.RunID.String(),
		Stage:    name,
		Labeled:  out.Labeled,
		Complete: complete,
	}, logger)

	// Labels are stored before scoring; a metric failure only warns.
	m, err := metrics.Calculate(labeled)
	switch {
	case errors.Is(err, metrics.ErrNoLabels):
		logger.Warn("no labels to score", "stage", name)
	case err != nil:
		logger.Warn("failed to score labels", "stage", name, "error", err)
	}
	for k, v := range m {
		out.Metrics[k] = v
	}
	logger.Info("stage metrics", "stage", name, "labeled", out.Labeled, "metrics", out.Metrics)
	return out, nil
}

func (r *Runner) publish(subject string, ev any, logger *slog.Logger) {
	if r.deps.Events == nil {
		return
	}
	if err := r.deps.Events.Publish(subject, ev); err != nil {
		logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func (r *Runner) notify(ctx context.Context, res *Result, logger *slog.Logger) {
	if r.deps.Slack == nil {
		return
	}
	stages := make([]slack.Stage, 0, len(res.Stages))
	for _, s := range res.Stages {
		st := slack.Stage{Name: s.Name, Records: s.Summary.Count, Labeled: s.Labeled}
		if p, ok := s.Metrics["precision"]; ok {
			st.Precision = &p
		}
		stages = append(stages, st)
	}

	ts, err := r.deps.Slack.PostSummary(ctx, slack.FormatRunSummary(res.Name, res.Rule, stages))
	if err != nil {
		logger.Warn("failed to post slack summary", "error", err)
		return
	}
	if len(res.Classes) == 0 {
		return
	}
	counts := make(map[string]int, len(res.Classes))
	for class, s := range res.Classes {
		counts[class] = s.Count
	}
	if err := r.deps.Slack.PostThread(ctx, ts, slack.FormatClasses(counts)); err != nil {
		logger.Warn("failed to post slack class breakdown", "error", err)
	}
}

func writeResult(dir string, res *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, res.Name+".json"), data, 0o644)
}

// ClassNames lists result classes in a stable order.
func (r *Result) ClassNames() []string {
	names := make([]string, 0, len(r.Classes))
	for name := range r.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
