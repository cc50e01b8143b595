// Package image submits image-generation jobs to the creative platform and
// polls the job-status store until the job resolves.
package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/logger"
)

// Mode selects which generation flow is used.
type Mode string

const (
	// ModeTextToImage submits a scene prompt built around the title.
	ModeTextToImage Mode = "text-to-image"
	// ModeTemplateEdit submits a placeholder-replacement edit over one of the
	// fixed template base images.
	ModeTemplateEdit Mode = "template-edit"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 90
	defaultWidth        = 1200
	defaultHeight       = 1600
	defaultScale        = 0.5
	defaultTimeout      = 30 * time.Second
)

// Template is one fixed base image plus the placeholder text the edit prompt
// tells the model to replace.
type Template struct {
	Image       string
	Placeholder string
}

// Default templates mirror the creative team's current card designs.
var defaultTemplates = []Template{
	{Image: "images/6e739af7-77ed-4618-aac5-a039dca60f35.webp", Placeholder: "实验室来了一对多模态情侣"},
	{Image: "images/591e2e73-e6e0-4f47-8971-16351c0008f4.png", Placeholder: "食品女生结局一览"},
}

// JobStore reads the status record of a submitted job.
type JobStore interface {
	Get(ctx context.Context, jobID string) (domain.ImageJob, error)
}

// Picker chooses a template index given the template count. Injected so tests
// can force a deterministic choice.
type Picker func(n int) int

// Config holds creative-platform connection and polling settings.
type Config struct {
	BaseURL      string
	Token        string
	ResultPrefix string
	Mode         Mode
	Width        int
	Height       int
	Scale        float64
	PollInterval time.Duration
	MaxPolls     int
	Timeout      time.Duration
}

// Generator runs one of the two image flows end to end.
type Generator struct {
	cfg        Config
	templates  []Template
	store      JobStore
	pick       Picker
	httpClient *http.Client
	logger     logger.Logger
}

// NewGenerator builds a generator. pick may be nil for non-template modes.
func NewGenerator(cfg Config, store JobStore, pick Picker, log logger.Logger) (*Generator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("image base URL is required")
	}
	if store == nil {
		return nil, errors.New("image job store is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeTemplateEdit
	}
	if cfg.Mode == ModeTemplateEdit && pick == nil {
		return nil, errors.New("template picker is required in template-edit mode")
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	if cfg.Scale <= 0 {
		cfg.Scale = defaultScale
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = defaultMaxPolls
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Generator{
		cfg:        cfg,
		templates:  defaultTemplates,
		store:      store,
		pick:       pick,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}, nil
}

type submitResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Generate submits a job for the given title and polls until it resolves.
// It returns the first result URL, prefixed with the configured asset host.
func (g *Generator) Generate(ctx context.Context, title string) (string, error) {
	jobID, err := g.submit(ctx, title)
	if err != nil {
		return "", err
	}

	g.logger.Info("image job submitted",
		logger.String("job_id", jobID),
		logger.String("mode", string(g.cfg.Mode)),
	)

	result, err := g.poll(ctx, jobID)
	if err != nil {
		return "", err
	}

	return g.cfg.ResultPrefix + result, nil
}

func (g *Generator) submit(ctx context.Context, title string) (string, error) {
	endpoint, params := g.buildSubmission(title)

	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal image submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create image submission: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", g.cfg.Token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit image job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("image submission returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode image submission response: %w", err)
	}
	if parsed.Code != http.StatusOK || parsed.Data == "" {
		return "", fmt.Errorf("image submission rejected: code %d, message %q", parsed.Code, parsed.Message)
	}

	return parsed.Data, nil
}

func (g *Generator) buildSubmission(title string) (string, map[string]any) {
	base := strings.TrimRight(g.cfg.BaseURL, "/")

	if g.cfg.Mode == ModeTextToImage {
		prompt := fmt.Sprintf("一张可爱涂鸦风格的插画卡片，竖直矩形布局，背景为带有轻微褶皱质感的浅白色纸面。画面中央是大号简体中文文字“%s”，字体为深紫色手写风格，整体风格俏皮趣味，带有手账和社交媒体配图的氛围。", title)
		return base + "/txt2img", map[string]any{
			"prompt":      prompt,
			"width":       g.cfg.Width,
			"height":      g.cfg.Height,
			"req_key":     "jimeng_t2i_v30",
			"use_pre_llm": false,
			"batchSize":   1,
		}
	}

	tpl := g.templates[g.pick(len(g.templates))]
	prompt := fmt.Sprintf("将文本“%s”修改为“%s”，只修改文本，不要添加其他元素", tpl.Placeholder, title)
	return base + "/img2img/text-edit", map[string]any{
		"prompt":     prompt,
		"image_urls": []string{tpl.Image},
		"req_key":    "",
		"scale":      g.cfg.Scale,
		"seed":       0,
		"width":      g.cfg.Width,
		"height":     g.cfg.Height,
		"batchSize":  1,
	}
}

// poll queries the job-status store at the configured interval until the job
// reaches a terminal status or the poll budget runs out. The budget is the
// hard bound: the store itself never terminates the loop on our behalf.
func (g *Generator) poll(ctx context.Context, jobID string) (string, error) {
	for attempt := 1; attempt <= g.cfg.MaxPolls; attempt++ {
		job, err := g.store.Get(ctx, jobID)
		if err != nil {
			return "", err
		}

		switch job.Status {
		case domain.ImageJobSucceeded:
			if len(job.Results) == 0 {
				return "", fmt.Errorf("image job %s succeeded without results", jobID)
			}
			return job.Results[0], nil
		case domain.ImageJobFailed:
			return "", fmt.Errorf("image job %s: %w", jobID, domain.ErrImageJobFailed)
		case domain.ImageJobNotSubmitted, domain.ImageJobQueuing, domain.ImageJobRunning:
			// keep polling
		default:
			g.logger.Warn("image job reported unknown status",
				logger.String("job_id", jobID),
				logger.String("status", string(job.Status)),
			)
		}

		if attempt == g.cfg.MaxPolls {
			break
		}
		select {
		case <-time.After(g.cfg.PollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("image job %s after %d polls: %w", jobID, g.cfg.MaxPolls, domain.ErrPollExhausted)
}
