// Package pipeline orchestrates the multi-stage note-generation workflow:
// candidate selection, query derivation, web search, article and
// selling-point generation, image generation, and task persistence, with
// per-stage retry and a try-next-candidate fallback loop on top.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/llmjson"
	"github.com/socialads/notegen/internal/logger"
	"github.com/socialads/notegen/internal/prompts"
	"github.com/socialads/notegen/internal/retry"
	"github.com/socialads/notegen/internal/search"
)

// CandidateSource supplies unconsumed input candidates and records
// consumption.
type CandidateSource interface {
	Next(ctx context.Context) (domain.Candidate, error)
	MarkConsumed(ctx context.Context, id string) error
}

// TaskSink persists the final composed artifact.
type TaskSink interface {
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
}

// Completer produces a text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Searcher runs a web search and returns normalized result items.
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.SearchResultItem, error)
}

// ImageGenerator produces an image URL for a title.
type ImageGenerator interface {
	Generate(ctx context.Context, title string) (string, error)
}

// MetricsTracker receives pipeline instrumentation events.
type MetricsTracker interface {
	RunCompleted(platform string, success bool)
	StageObserved(stage string, success bool, elapsed time.Duration)
	CandidateAttempted()
}

type nopMetrics struct{}

func (nopMetrics) RunCompleted(string, bool)                 {}
func (nopMetrics) StageObserved(string, bool, time.Duration) {}
func (nopMetrics) CandidateAttempted()                       {}

// ConsumePolicy names what happens to a candidate whose pipeline run failed
// for a reason other than an unusable query. The source history shows all
// three behaviors at different times, so the choice is an explicit setting
// rather than an accident of the code path.
type ConsumePolicy string

const (
	// ConsumeOnUnusable burns a candidate only when its derived query is
	// blank; other failures leave it available for a later run.
	ConsumeOnUnusable ConsumePolicy = "unusable-only"
	// ConsumeAlways burns every candidate whose run failed.
	ConsumeAlways ConsumePolicy = "always"
	// ConsumeNever leaves failed candidates untouched, including unusable
	// ones. Unusable candidates will then be re-selected; only useful for
	// debugging.
	ConsumeNever ConsumePolicy = "never"
)

// ParseConsumePolicy validates a policy string, defaulting to unusable-only.
func ParseConsumePolicy(s string) (ConsumePolicy, error) {
	switch ConsumePolicy(s) {
	case "":
		return ConsumeOnUnusable, nil
	case ConsumeOnUnusable, ConsumeAlways, ConsumeNever:
		return ConsumePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown consume policy %q", s)
	}
}

const (
	defaultMaxCandidateAttempts = 5
	defaultCandidatePause       = time.Second
	defaultSearchRetries        = 1 // 2 attempts total
)

// Stage names used in logs, metrics, and spans.
const (
	stageSelect       = "select candidate"
	stageDeriveQuery  = "derive search query"
	stageSearch       = "web search"
	stageArticle      = "generate article"
	stageSellingPoint = "generate selling point"
	stageImage        = "generate image"
	stagePersist      = "persist task"
)

// Options configures one orchestrator instance.
type Options struct {
	Platform             string
	MaxCandidateAttempts int
	CandidatePause       time.Duration
	StageRetry           retry.Config
	SearchRetry          retry.Config
	ConsumeOnFailure     ConsumePolicy
	// SkipSearch disables query derivation and web search; the article is
	// generated from the candidate headline alone. Used by the trending
	// pipeline, whose candidates carry no body to derive a query from.
	SkipSearch bool
	SkipImage  bool
}

func (o *Options) applyDefaults() {
	if o.MaxCandidateAttempts <= 0 {
		o.MaxCandidateAttempts = defaultMaxCandidateAttempts
	}
	if o.CandidatePause == 0 {
		o.CandidatePause = defaultCandidatePause
	}
	if o.StageRetry.MaxRetries == 0 && o.StageRetry.Delay == 0 {
		o.StageRetry = retry.DefaultConfig()
	}
	if o.SearchRetry.MaxRetries == 0 && o.SearchRetry.Delay == 0 {
		o.SearchRetry = retry.Config{MaxRetries: defaultSearchRetries, Delay: retry.DefaultDelay}
	}
	if o.ConsumeOnFailure == "" {
		o.ConsumeOnFailure = ConsumeOnUnusable
	}
}

// Deps wires the collaborators into the orchestrator. All remote collaborators
// are injected so tests can run the full state machine against fakes.
type Deps struct {
	Source  CandidateSource
	Sink    TaskSink
	LLM     Completer
	Search  Searcher
	Imager  ImageGenerator
	Catalog []prompts.CatalogEntry
	Metrics MetricsTracker
	Logger  logger.Logger
}

// Orchestrator runs the generation pipeline for one platform.
type Orchestrator struct {
	source  CandidateSource
	sink    TaskSink
	llm     Completer
	search  Searcher
	imager  ImageGenerator
	catalog []prompts.CatalogEntry
	exec    *retry.Executor
	metrics MetricsTracker
	tracer  trace.Tracer
	logger  logger.Logger
	opts    Options
}

// NewOrchestrator validates dependencies and builds an orchestrator.
func NewOrchestrator(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Source == nil {
		return nil, errors.New("candidate source is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("task sink is required")
	}
	if deps.LLM == nil {
		return nil, errors.New("llm client is required")
	}
	opts.applyDefaults()
	if !opts.SkipSearch && deps.Search == nil {
		return nil, errors.New("search client is required unless the search stage is disabled")
	}
	if !opts.SkipImage && deps.Imager == nil {
		return nil, errors.New("image generator is required unless the image stage is disabled")
	}
	if opts.Platform == "" {
		return nil, errors.New("platform is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}

	return &Orchestrator{
		source:  deps.Source,
		sink:    deps.Sink,
		llm:     deps.LLM,
		search:  deps.Search,
		imager:  deps.Imager,
		catalog: deps.Catalog,
		exec:    retry.NewExecutor(deps.Logger),
		metrics: deps.Metrics,
		tracer:  otel.Tracer("notegen/pipeline"),
		logger:  deps.Logger,
		opts:    opts,
	}, nil
}

// Request identifies the account the generated task belongs to.
type Request struct {
	AccountID   string
	PhoneNumber string
}

// Result is the composed output of one successful pipeline run.
type Result struct {
	SearchResult []domain.SearchResultItem `json:"searchResult"`
	Note         domain.Candidate          `json:"note"`
	Article      domain.Article            `json:"articleJson"`
	SellingPoint domain.SellingPoint       `json:"sellingPointJson"`
	Image        string                    `json:"image"`
	TaskID       string                    `json:"taskId"`
}

// AttemptsExhaustedError reports that every candidate attempt failed. It
// enumerates the attempted candidate ids and wraps the last failure.
type AttemptsExhaustedError struct {
	CandidateIDs []string
	Err          error
}

func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("all %d candidate attempts failed (candidates: %s): %v",
		len(e.CandidateIDs), strings.Join(e.CandidateIDs, ", "), e.Err)
}

func (e *AttemptsExhaustedError) Unwrap() error { return e.Err }

// Generate runs the pipeline with the fallback-over-candidates loop: each
// failed candidate consumes one unit of the attempt budget, and an unusable
// candidate is burned before the loop advances.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.generate",
		trace.WithAttributes(attribute.String("platform", o.opts.Platform)))
	defer span.End()

	attempted := make([]string, 0, o.opts.MaxCandidateAttempts)
	var lastErr error

	for attempt := 1; attempt <= o.opts.MaxCandidateAttempts; attempt++ {
		candidate, err := o.selectCandidate(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				o.metrics.RunCompleted(o.opts.Platform, false)
				return nil, domain.ErrNotFound
			}
			lastErr = err
			continue
		}

		attempted = append(attempted, candidate.ID)
		o.metrics.CandidateAttempted()
		o.logger.Info("processing candidate",
			logger.String("candidate_id", candidate.ID),
			logger.String("title", candidate.Title),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", o.opts.MaxCandidateAttempts),
		)

		result, err := o.processCandidate(ctx, req, candidate)
		if err == nil {
			o.metrics.RunCompleted(o.opts.Platform, true)
			return result, nil
		}

		lastErr = err
		o.logger.Warn("candidate processing failed",
			logger.String("candidate_id", candidate.ID),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)

		if consumeErr := o.consumeAfterFailure(ctx, candidate.ID, err); consumeErr != nil {
			o.metrics.RunCompleted(o.opts.Platform, false)
			return nil, consumeErr
		}

		if attempt < o.opts.MaxCandidateAttempts && o.opts.CandidatePause > 0 {
			select {
			case <-time.After(o.opts.CandidatePause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	o.metrics.RunCompleted(o.opts.Platform, false)
	return nil, &AttemptsExhaustedError{CandidateIDs: attempted, Err: lastErr}
}

// consumeAfterFailure applies the consumption policy to a failed candidate.
// On the unusable path consumption must succeed before the loop advances,
// otherwise the same bad candidate would be re-selected forever.
func (o *Orchestrator) consumeAfterFailure(ctx context.Context, candidateID string, cause error) error {
	unusable := errors.Is(cause, domain.ErrUnusableCandidate)

	switch {
	case unusable && o.opts.ConsumeOnFailure != ConsumeNever:
		if err := o.source.MarkConsumed(ctx, candidateID); err != nil {
			return fmt.Errorf("mark unusable candidate %s consumed: %w", candidateID, err)
		}
		o.logger.Info("unusable candidate consumed", logger.String("candidate_id", candidateID))
	case !unusable && o.opts.ConsumeOnFailure == ConsumeAlways:
		if err := o.source.MarkConsumed(ctx, candidateID); err != nil {
			o.logger.Warn("failed to consume candidate after failure",
				logger.String("candidate_id", candidateID),
				logger.Error(err),
			)
		}
	}

	return nil
}

func (o *Orchestrator) selectCandidate(ctx context.Context) (domain.Candidate, error) {
	return stage(ctx, o, stageSelect, o.opts.StageRetry, func(ctx context.Context) (domain.Candidate, error) {
		candidate, err := o.source.Next(ctx)
		if err != nil && errors.Is(err, domain.ErrNotFound) {
			// Pool exhaustion is terminal; retrying cannot help.
			return domain.Candidate{}, retry.Permanent(err)
		}
		return candidate, err
	})
}

// processCandidate runs the stage sequence for one candidate. Every stage
// failure surfaces to the fallback loop; only query derivation distinguishes
// the unusable-candidate signal from ordinary failure.
func (o *Orchestrator) processCandidate(ctx context.Context, req Request, candidate domain.Candidate) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.candidate",
		trace.WithAttributes(attribute.String("candidate_id", candidate.ID)))
	defer span.End()

	var items []domain.SearchResultItem
	articlePrompt := prompts.TrendingArticle(candidate.Title)
	if !o.opts.SkipSearch {
		query, err := o.deriveQuery(ctx, candidate)
		if err != nil {
			return nil, err
		}

		items, err = stage(ctx, o, stageSearch, o.opts.SearchRetry, func(ctx context.Context) ([]domain.SearchResultItem, error) {
			return o.search.Search(ctx, query.SearchQuery)
		})
		if err != nil {
			return nil, err
		}
		articlePrompt = prompts.Article(search.BuildContent(items))
	}

	article, err := o.generateArticle(ctx, articlePrompt)
	if err != nil {
		return nil, err
	}

	sellingPoint, err := o.generateSellingPoint(ctx, article.Content)
	if err != nil {
		return nil, err
	}

	var imageURL string
	if !o.opts.SkipImage {
		imageURL, err = stage(ctx, o, stageImage, o.opts.StageRetry, func(ctx context.Context) (string, error) {
			return o.imager.Generate(ctx, article.Title)
		})
		if err != nil {
			return nil, err
		}
	}

	task, err := o.persist(ctx, req, article, sellingPoint, imageURL)
	if err != nil {
		return nil, err
	}

	// Consumption on the success path is best-effort: the task is already
	// durable, so a failure here must not fail the request.
	if err := o.source.MarkConsumed(ctx, candidate.ID); err != nil {
		o.logger.Warn("failed to mark candidate consumed after success",
			logger.String("candidate_id", candidate.ID),
			logger.Error(err),
		)
	}

	o.logger.Info("pipeline run succeeded",
		logger.String("candidate_id", candidate.ID),
		logger.String("task_id", task.ID),
		logger.String("title", article.Title),
	)

	return &Result{
		SearchResult: items,
		Note:         candidate,
		Article:      article,
		SellingPoint: sellingPoint,
		Image:        imageURL,
		TaskID:       task.ID,
	}, nil
}

// deriveQuery runs the query-derivation stage. Transient LLM and parse
// failures are retried; a blank query is checked after the retry wrapper so
// the same candidate is never re-derived once the model has judged it
// unusable.
func (o *Orchestrator) deriveQuery(ctx context.Context, candidate domain.Candidate) (domain.SearchQuery, error) {
	prompt := prompts.SearchQuery(candidate.Title, candidate.Content)

	query, err := stage(ctx, o, stageDeriveQuery, o.opts.StageRetry, func(ctx context.Context) (domain.SearchQuery, error) {
		text, err := o.llm.Complete(ctx, prompt)
		if err != nil {
			return domain.SearchQuery{}, err
		}
		var parsed domain.SearchQuery
		if err := llmjson.Decode(text, &parsed); err != nil {
			return domain.SearchQuery{}, err
		}
		return parsed, nil
	})
	if err != nil {
		return domain.SearchQuery{}, err
	}

	if strings.TrimSpace(query.SearchQuery) == "" {
		o.logger.Info("candidate judged unusable",
			logger.String("candidate_id", candidate.ID),
			logger.String("reason", query.Reason),
		)
		return domain.SearchQuery{}, fmt.Errorf("candidate %s: %w", candidate.ID, domain.ErrUnusableCandidate)
	}

	o.logger.Info("derived search query",
		logger.String("candidate_id", candidate.ID),
		logger.String("query", query.SearchQuery),
	)

	return query, nil
}

func (o *Orchestrator) generateArticle(ctx context.Context, prompt string) (domain.Article, error) {
	return stage(ctx, o, stageArticle, o.opts.StageRetry, func(ctx context.Context) (domain.Article, error) {
		text, err := o.llm.Complete(ctx, prompt)
		if err != nil {
			return domain.Article{}, err
		}
		var article domain.Article
		if err := llmjson.Decode(text, &article); err != nil {
			return domain.Article{}, err
		}
		if strings.TrimSpace(article.Title) == "" || strings.TrimSpace(article.Content) == "" {
			return domain.Article{}, errors.New("generated article is missing title or content")
		}
		return article, nil
	})
}

func (o *Orchestrator) generateSellingPoint(ctx context.Context, articleContent string) (domain.SellingPoint, error) {
	prompt, err := prompts.SellingPoint(articleContent, o.catalog)
	if err != nil {
		return domain.SellingPoint{}, err
	}

	return stage(ctx, o, stageSellingPoint, o.opts.StageRetry, func(ctx context.Context) (domain.SellingPoint, error) {
		text, err := o.llm.Complete(ctx, prompt)
		if err != nil {
			return domain.SellingPoint{}, err
		}
		var sp domain.SellingPoint
		if err := llmjson.Decode(text, &sp); err != nil {
			return domain.SellingPoint{}, err
		}
		// The paragraph can be absent even when the JSON parses cleanly.
		if strings.TrimSpace(sp.Paragraph) == "" {
			return domain.SellingPoint{}, errors.New("selling point paragraph is missing")
		}
		return sp, nil
	})
}

func (o *Orchestrator) persist(ctx context.Context, req Request, article domain.Article, sp domain.SellingPoint, imageURL string) (*domain.Task, error) {
	images := []string{}
	if imageURL != "" {
		images = append(images, imageURL)
	}

	task := &domain.Task{
		AccountID:   req.AccountID,
		Platform:    o.opts.Platform,
		PhoneNumber: req.PhoneNumber,
		ReportID:    "",
		Title:       article.Title,
		Images:      images,
		Content:     ComposeContent(article.Content, sp.Paragraph),
		Topic:       domain.MergeTopics(article.Topic, sp.Topic),
	}

	return stage(ctx, o, stagePersist, o.opts.StageRetry, func(ctx context.Context) (*domain.Task, error) {
		return o.sink.Create(ctx, task)
	})
}

var hashMarker = regexp.MustCompile(`#.*\s?`)

// ComposeContent joins the article body and the selling-point paragraph with
// a triple newline, stripping inline hash/topic markers from both parts.
func ComposeContent(articleContent, sellingPointParagraph string) string {
	return hashMarker.ReplaceAllString(articleContent, "") +
		"\n\n\n" +
		hashMarker.ReplaceAllString(sellingPointParagraph, "")
}

// stage wraps one pipeline stage with retry, a span, and metrics.
func stage[T any](ctx context.Context, o *Orchestrator, name string, cfg retry.Config, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	result, err := retry.DoValue(ctx, o.exec, name, cfg, fn)
	o.metrics.StageObserved(name, err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}
