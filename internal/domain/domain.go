// Package domain contains the core domain models for the notegen service.
package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no unconsumed candidate remains in the pool.
var ErrNotFound = errors.New("no available candidates")

// ErrUnusableCandidate is returned when the derived search query is blank,
// meaning the candidate itself cannot support a safe query. The orchestrator
// consumes the candidate and advances instead of retrying.
var ErrUnusableCandidate = errors.New("candidate is unusable for query derivation")

// ErrImageJobFailed is returned when the creative platform reports a terminal
// failure for an image job.
var ErrImageJobFailed = errors.New("image job failed")

// ErrPollExhausted is returned when an image job did not reach a terminal
// status within the poll budget.
var ErrPollExhausted = errors.New("image job polling exhausted without terminal status")

// Candidate is an unused content seed eligible for pipeline processing.
// Note seeds come from the notes table; trending seeds from the aggregator.
type Candidate struct {
	ID              string   `db:"id"               json:"id"`
	Title           string   `db:"title"            json:"title"`
	Content         string   `db:"content"          json:"content"`
	Tags            []string `db:"-"                json:"tags,omitempty"`
	Author          string   `db:"author"           json:"author,omitempty"`
	CreateTimestamp int64    `db:"create_timestamp" json:"createTimestamp"`
	Comment         int      `db:"comment"          json:"comment"`
	Used            bool     `db:"used"             json:"used"`
}

// SearchQuery is the output of the query-derivation stage.
type SearchQuery struct {
	SearchQuery string   `json:"search_query"`
	Reason      string   `json:"reason"`
	Topic       []string `json:"topic,omitempty"`
}

// SearchResultItem is one normalized web-search hit.
type SearchResultItem struct {
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// Article is the structured output of the article-generation stage.
type Article struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Topic   []string `json:"topic"`
}

// SellingPointReference cites one catalog entry the paragraph drew from.
type SellingPointReference struct {
	Model   string `json:"model"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SellingPoint is the structured output of the selling-point stage.
type SellingPoint struct {
	Paragraph  string                  `json:"selling_point_paragraph"`
	Topic      []string                `json:"topic"`
	References []SellingPointReference `json:"reference_selling_point"`
}

// ImageJobStatus represents the state of an asynchronous image job.
type ImageJobStatus string

const (
	ImageJobNotSubmitted ImageJobStatus = "not_submitted"
	ImageJobQueuing      ImageJobStatus = "queuing"
	ImageJobRunning      ImageJobStatus = "running"
	ImageJobSucceeded    ImageJobStatus = "succeeded"
	ImageJobFailed       ImageJobStatus = "failed"
)

// Terminal reports whether the status ends the polling loop.
func (s ImageJobStatus) Terminal() bool {
	return s == ImageJobSucceeded || s == ImageJobFailed
}

// ImageJob tracks one image-generation request in the job-status store.
type ImageJob struct {
	ID      string         `json:"taskGroupId"`
	Status  ImageJobStatus `json:"status"`
	Results []string       `json:"results"`
}

// Task is the persisted artifact of one successful pipeline run.
type Task struct {
	ID              string         `db:"id"               json:"id"`
	AccountID       string         `db:"account_id"       json:"accountId"`
	Platform        string         `db:"platform"         json:"platform"`
	PhoneNumber     string         `db:"phone_number"     json:"phoneNumber"`
	ReportID        string         `db:"report_id"        json:"reportId"`
	Title           string         `db:"title"            json:"title"`
	Images          []string       `db:"-"                json:"images"`
	Content         string         `db:"content"          json:"content"`
	Ext             map[string]any `db:"-"                json:"ext"`
	Status          bool           `db:"status"           json:"status"`
	Topic           []string       `db:"-"                json:"topic"`
	CreateTimestamp int64          `db:"create_timestamp" json:"createTimestamp"`
	UpdateTimestamp int64          `db:"update_timestamp" json:"updateTimestamp"`
}

// MergeTopics concatenates article topics then selling-point topics, truncated
// to the platform cap of 10. Order is preserved and duplicates are kept.
func MergeTopics(article, sellingPoint []string) []string {
	const maxTopics = 10
	merged := make([]string, 0, len(article)+len(sellingPoint))
	merged = append(merged, article...)
	merged = append(merged, sellingPoint...)
	if len(merged) > maxTopics {
		merged = merged[:maxTopics]
	}
	return merged
}

// NowMillis returns the current wall clock as epoch milliseconds, the unit the
// task and note tables use for timestamps.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
