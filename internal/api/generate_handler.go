package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/logger"
	"github.com/socialads/notegen/internal/pipeline"
	"github.com/socialads/notegen/internal/retry"
)

type generateRequest struct {
	AccountID   string `json:"accountId" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

type failureResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	Message        string `json:"message"`
	ProcessingTime int64  `json:"processingTime"`
	Timestamp      string `json:"timestamp"`
}

func fail(c *gin.Context, start time.Time, status int, label string, err error) {
	c.JSON(status, failureResponse{
		Success:        false,
		Error:          label,
		Message:        err.Error(),
		ProcessingTime: time.Since(start).Milliseconds(),
		Timestamp:      time.Now().Format(time.RFC3339),
	})
}

// generate builds the handler for one pipeline variant. Both endpoints share
// the request shape, the failure envelope, and the status mapping.
func (r *Router) generate(gen Generator, variant string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if gen == nil {
			fail(c, start, http.StatusServiceUnavailable, "pipeline unavailable",
				errors.New(variant+" pipeline is not configured"))
			return
		}

		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, start, http.StatusBadRequest, "invalid request", err)
			return
		}

		result, err := gen.Generate(c.Request.Context(), pipeline.Request{
			AccountID:   req.AccountID,
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			status, label := statusFor(err)
			r.deps.Logger.Error("generation request failed",
				logger.String("variant", variant),
				logger.String("account_id", req.AccountID),
				logger.Int("status", status),
				logger.Error(err),
			)
			fail(c, start, status, label, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// statusFor maps pipeline failures to HTTP statuses: exhaustion of candidates
// or of a remote stage is an upstream problem, a drained candidate pool is
// not-found, anything else is internal.
func statusFor(err error) (int, string) {
	var attemptsExhausted *pipeline.AttemptsExhaustedError
	var stageExhausted *retry.ExhaustedError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "no candidates available"
	case errors.As(err, &attemptsExhausted), errors.As(err, &stageExhausted):
		return http.StatusBadGateway, "generation attempts exhausted"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
