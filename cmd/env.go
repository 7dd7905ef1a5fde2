package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/annotate"
	"github.com/sells-group/legislation-cli/internal/catalog"
	"github.com/sells-group/legislation-cli/internal/fetcher"
	"github.com/sells-group/legislation-cli/internal/geometry"
	"github.com/sells-group/legislation-cli/internal/intake"
	"github.com/sells-group/legislation-cli/internal/layout"
	"github.com/sells-group/legislation-cli/internal/llm"
	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/pdfpage"
	"github.com/sells-group/legislation-cli/internal/pipeline"
	"github.com/sells-group/legislation-cli/internal/resilience"
	"github.com/sells-group/legislation-cli/internal/store"
	anthropicpkg "github.com/sells-group/legislation-cli/pkg/anthropic"
)

// pipelineEnv holds the store, catalog and pipeline needed by the run command.
type pipelineEnv struct {
	Session  model.Session
	Store    store.Store
	Catalog  *catalog.Cache
	Pipeline *pipeline.Pipeline
	LLM      *llm.Client
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func currentSession() model.Session {
	return model.Session{Year: cfg.Session.Year, DataDir: cfg.Session.DataDir}
}

// initStore opens and migrates the state store of the configured session.
func initStore(ctx context.Context) (store.Store, error) {
	session := currentSession()

	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(session.StatePath())
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, session.Key(), &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newHTTPFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         cfg.Fetch.UserAgent,
		Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.Fetch.MaxRetries,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})
}

// newCatalog builds the session catalog cache over the master-list loader.
func newCatalog(f fetcher.Fetcher) (*catalog.Cache, error) {
	requireChapter, err := cfg.Session.RequireChapterFor(time.Now())
	if err != nil {
		return nil, err
	}
	return catalog.NewCache(catalog.NewLoader(f, cfg.Session.CatalogURL, requireChapter)), nil
}

func layoutOptions() layout.Options {
	opts := layout.DefaultOptions()
	opts.IncludeStruck = cfg.Layout.IncludeStruck
	opts.RowTolerance = cfg.Layout.RowTolerance
	opts.LineBreak = cfg.Layout.LineBreak
	opts.SpaceGap = cfg.Layout.SpaceGap
	opts.Strike = geometry.StrikeOptions{
		MaxHeight:  cfg.Layout.StrikeMaxHeight,
		MinOverlap: cfg.Layout.StrikeMinOverlap,
	}
	return opts
}

// initPipeline sets up the store, collaborators and the Pipeline. Callers
// should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, err
	}
	session := currentSession()

	questions, err := annotate.Load(cfg.Annotate.QuestionsPath, cfg.Annotate.AgenciesPath)
	if err != nil {
		return nil, err
	}

	httpFetcher := newHTTPFetcher()
	cat, err := newCatalog(httpFetcher)
	if err != nil {
		return nil, err
	}
	docs, err := intake.New(httpFetcher, session, cfg.Session.DocumentBaseURL)
	if err != nil {
		return nil, err
	}

	llmClient := llm.New(anthropicpkg.NewClient(cfg.Anthropic.Key), llm.Config{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Retry: resilience.FromRetryConfig(
			cfg.LLM.MaxAttempts, cfg.LLM.InitialBackoffMs, cfg.LLM.MaxBackoffMs, cfg.LLM.TimeoutSecs),
	})

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	plain := layoutOptions()
	plain.DetectStrikes = false

	p := pipeline.New(pipeline.Deps{
		Store:        st,
		Fetcher:      docs,
		Introspector: pdfpage.New(pdfpage.Options{Validate: cfg.PDF.Validate}),
		Transformer:  llmClient,
		Annotator:    llmClient,
		Questions:    questions,
	}, pipeline.Options{
		Session:                session,
		Layout:                 layoutOptions(),
		Plain:                  plain,
		CallTimeout:            time.Duration(cfg.Pipeline.CallTimeoutSecs) * time.Second,
		MaxConcurrentDocuments: cfg.Pipeline.MaxConcurrentDocuments,
		ModelName:              llmClient.Model(),
	})

	zap.L().Debug("pipeline initialized",
		zap.String("session", session.Key()),
		zap.String("store", cfg.Store.Driver),
		zap.Int("questions", len(questions.Questions)),
		zap.Int("agencies", len(questions.Agencies)),
	)

	return &pipelineEnv{Session: session, Store: st, Catalog: cat, Pipeline: p, LLM: llmClient}, nil
}
