package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"chronicreport/internal/baseline"
	"chronicreport/internal/config"
	"chronicreport/internal/domain"
	"chronicreport/internal/engine"
	"chronicreport/internal/httpx"
	"chronicreport/internal/identity"
	"chronicreport/internal/integrations/llm"
	slackbot "chronicreport/internal/integrations/slack"
	"chronicreport/internal/loader"
	"chronicreport/internal/report"
	"chronicreport/internal/roster"
	"chronicreport/internal/runstats"
	"chronicreport/internal/storage/sqlite"
)

// Backend is where snapshots are read from and written to.
type Backend interface {
	baseline.Source
	baseline.Sink
}

// Runner executes one reporting period end to end: load inputs, run the
// engine, write outputs, persist the snapshot and notify.
type Runner struct {
	cfg      config.Config
	backend  Backend
	notifier *slackbot.Notifier
	narrator *llm.Narrator
	stats    *runstats.Metrics
	now      func() time.Time
}

type RunOptions struct {
	Period domain.Period
	// DryRun writes the summary files but skips snapshot persistence and Slack.
	DryRun bool
}

type RunOutput struct {
	Result      *engine.Result
	ReportPath  string
	SummaryPath string
	Narrative   string
}

// NewRunner wires optional integrations from cfg. Slack and the narrative are
// enabled only when their credentials are configured.
func NewRunner(cfg config.Config, backend Backend) *Runner {
	r := &Runner{
		cfg:     cfg,
		backend: backend,
		stats:   runstats.New(),
		now:     time.Now,
	}
	if cfg.SlackConfigured() {
		r.notifier = slackbot.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID,
			slack.OptionHTTPClient(httpx.ExternalHTTPClient()))
	}
	if cfg.LLMConfigured() {
		r.narrator = llm.NewNarrator(cfg.AnthropicAPIKey, cfg.LLMModel,
			option.WithHTTPClient(httpx.ExternalHTTPClient()))
		if cfg.LLMGlossaryPath != "" {
			g, err := llm.LoadGlossary(cfg.LLMGlossaryPath)
			if err != nil {
				log.Printf("Warning: glossary not loaded, narrative runs without it: %v", err)
			} else {
				r.narrator.WithGlossary(g)
				log.Printf("Loaded LLM glossary with %d terms from %s", len(g.Terms), cfg.LLMGlossaryPath)
			}
		}
	}
	return r
}

// OpenBackend returns the configured snapshot backend and a close func.
func OpenBackend(cfg config.Config) (Backend, func(), error) {
	switch cfg.SnapshotBackend {
	case config.BackendFiles:
		log.Printf("Snapshot backend: files in %s", cfg.SnapshotDir)
		return baseline.NewDirSource(cfg.SnapshotDir), func() {}, nil
	case config.BackendSQLite:
		db, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("init database: %w", err)
		}
		log.Printf("Snapshot backend: sqlite at %s", cfg.DBPath)
		return sqlite.NewStore(db), func() { closeDB(db) }, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown snapshot backend '%s'", config.ErrInvalidConfig, cfg.SnapshotBackend)
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunOutput, error) {
	start := r.now()
	out, err := r.run(ctx, opts)
	took := r.now().Sub(start)
	if err != nil {
		r.stats.ObserveFailure(took)
		log.Printf("Run for %s failed after %s: %v", opts.Period, took.Round(time.Millisecond), err)
		if r.notifier != nil && !opts.DryRun {
			if nerr := r.notifier.NotifyFailure(ctx, opts.Period, err); nerr != nil {
				log.Printf("Slack failure notice error: %v", nerr)
			}
		}
	} else {
		r.stats.ObserveSuccess(out.Result, took, r.now())
	}
	if werr := r.stats.WriteTextfile(r.cfg.MetricsTextfilePath); werr != nil {
		log.Printf("Metrics textfile error: %v", werr)
	}
	return out, err
}

func (r *Runner) run(ctx context.Context, opts RunOptions) (*RunOutput, error) {
	if opts.Period.IsZero() {
		return nil, fmt.Errorf("reporting period is required")
	}
	if r.cfg.ImpactsPath == "" || r.cfg.CountsPath == "" {
		return nil, fmt.Errorf("impacts_path and counts_path are required")
	}

	matcher, err := identity.NewMatcher(identity.MatcherOptions{
		TestPrefix:         r.cfg.TestCircuitPrefix,
		TestVendorMarker:   r.cfg.TestVendorMarker,
		MediaPattern:       r.cfg.MediaPattern,
		PlaceholderPattern: r.cfg.PlaceholderPattern,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	var (
		impacts, counts loader.Loaded
		rost            roster.Roster
		g               errgroup.Group
	)
	g.Go(func() error {
		var err error
		impacts, err = loader.LoadFile(r.cfg.ImpactsPath, domain.SourceImpacts)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = loader.LoadFile(r.cfg.CountsPath, domain.SourceCounts)
		return err
	})
	g.Go(func() error {
		var err error
		rost, err = roster.Load(r.cfg.RosterPath, matcher)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	store, baselineWarnings, err := baseline.Load(ctx, r.backend, opts.Period, rost.Frozen(), matcher)
	if err != nil {
		return nil, err
	}

	res, err := engine.Run(engine.Input{
		Period:           opts.Period,
		Impacts:          impacts.Batch,
		Counts:           counts.Batch,
		Settings:         engineSettings(r.cfg, matcher),
		Baseline:         store,
		BaselineWarnings: baselineWarnings,
		Roster:           rost,
		Now:              r.now(),
	})
	if err != nil {
		return nil, err
	}
	res.Metadata.InputDigests = map[string]string{
		string(domain.SourceImpacts): impacts.SHA256,
		string(domain.SourceCounts):  counts.SHA256,
	}

	out := &RunOutput{Result: res}
	if r.narrator != nil && res.Trend.Available {
		text, usage, err := r.narrator.Narrate(ctx, res)
		if err != nil {
			res.Warnings = append(res.Warnings, domain.Warnf(domain.WarnNarrativeFailed, "executive summary skipped: %v", err))
		} else {
			out.Narrative = text
			log.Printf("Narrative drafted tokens=%d", usage.TotalTokens())
		}
	}

	outputs, err := report.Stage(res, out.Narrative, r.cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	out.ReportPath, out.SummaryPath = outputs.ReportPath, outputs.SummaryPath

	if opts.DryRun {
		if err := outputs.Commit(); err != nil {
			outputs.Discard()
			return nil, err
		}
		log.Printf("Dry run: summary written to %s, snapshot %s not persisted", out.ReportPath, res.Metadata.RunID)
		return out, nil
	}

	if err := r.backend.SaveSnapshot(ctx, res.Snapshot); err != nil {
		outputs.Discard()
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	log.Printf("Snapshot %s saved for %s", res.Metadata.RunID, opts.Period)
	if err := outputs.Commit(); err != nil {
		outputs.Discard()
		log.Printf("Snapshot %s is saved but the summary could not be published", res.Metadata.RunID)
		return nil, err
	}
	log.Printf("Summary written to %s", out.ReportPath)

	if r.notifier != nil {
		if err := r.notifier.NotifyRun(ctx, res, out.ReportPath); err != nil {
			log.Printf("Slack notify error: %v", err)
			res.Warnings = append(res.Warnings, domain.Warnf(domain.WarnNotifyFailed, "%v", err))
			r.refreshOutputs(res, out.Narrative)
		}
	}
	return out, nil
}

// refreshOutputs rewrites the published summary after a late warning. The
// run has already succeeded, so failures are only logged.
func (r *Runner) refreshOutputs(res *engine.Result, narrative string) {
	outputs, err := report.Stage(res, narrative, r.cfg.OutputDir)
	if err == nil {
		err = outputs.Commit()
	}
	if err != nil {
		if outputs != nil {
			outputs.Discard()
		}
		log.Printf("Summary refresh error: %v", err)
	}
}

func engineSettings(cfg config.Config, matcher *identity.Matcher) engine.Settings {
	return engine.Settings{
		ConsistentThreshold: cfg.ConsistentThreshold,
		Core:                cfg.CoreThresholds,
		Trend:               cfg.TrendThresholds,
		ExcludeRegional:     cfg.ExcludeRegional,
		ShowIndicators:      cfg.ShowIndicators,
		TopN:                cfg.TopN,
		WindowMonths:        cfg.WindowMonths,
		DaysPerMonth:        cfg.DaysPerMonth,
		Matcher:             matcher,
	}
}
