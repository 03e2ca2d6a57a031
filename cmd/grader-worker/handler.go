package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gradeworks/grader-worker/internal/logging"
	"github.com/gradeworks/grader-worker/internal/pipeline"
)

const (
	defaultGasLimit  = 1_000_000
	defaultTimeLimit = 30
)

// gradeRequest mirrors pipeline.Request's JSON shape, with pointer fields
// for anything that has a non-zero default so an absent field can be told
// apart from an explicit zero/false. Language and ChallengeID are only
// required for the full-pipeline (grader_rust) path; compile-only worker
// types need just Code.
type gradeRequest struct {
	Code          string        `json:"code" binding:"required"`
	Language      string        `json:"language"`
	TestCases     []interface{} `json:"testCases"`
	GasLimit      *uint64       `json:"gasLimit"`
	TimeLimit     *uint64       `json:"timeLimit"`
	EnableTracing *bool         `json:"enableTracing"`
	ChallengeID   string        `json:"challengeId"`
}

func (r gradeRequest) toPipelineRequest() pipeline.Request {
	req := pipeline.Request{
		Code:          r.Code,
		Language:      r.Language,
		TestCases:     r.TestCases,
		GasLimit:      defaultGasLimit,
		TimeLimit:     defaultTimeLimit,
		EnableTracing: true,
		ChallengeID:   r.ChallengeID,
	}
	if r.GasLimit != nil {
		req.GasLimit = *r.GasLimit
	}
	if r.TimeLimit != nil {
		req.TimeLimit = *r.TimeLimit
	}
	if r.EnableTracing != nil {
		req.EnableTracing = *r.EnableTracing
	}
	return req
}

// gradeHandler routes each request by WORKER_TYPE: "grader_rust" runs the
// full grading pipeline (fixtures, public/hidden tests, fuzzing); the
// compiler_* worker types only compile the submission and return
// {success, tool, output, error, artifacts}, matching the original
// compiler.rs handlers' response shape.
func gradeHandler(pipe *pipeline.Pipeline, workerType, fixturesBaseURL string) gin.HandlerFunc {
	if pipeline.IsCompileOnlyWorkerType(workerType) {
		return compileOnlyHandler(pipe, workerType)
	}
	return fullPipelineHandler(pipe)
}

func fullPipelineHandler(pipe *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body gradeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.Language == "" || body.ChallengeID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "language and challengeId are required"})
			return
		}

		report, err := pipe.Grade(c.Request.Context(), body.toPipelineRequest())
		if err != nil {
			logging.L().Error("grading failed",
				zap.String("challengeId", body.ChallengeID),
				zap.String("language", body.Language),
				zap.Error(err),
			)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func compileOnlyHandler(pipe *pipeline.Pipeline, workerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body gradeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report, err := pipe.CompileOnly(c.Request.Context(), workerType, body.Code)
		if err != nil {
			logging.L().Error("compile failed", zap.String("workerType", workerType), zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"error": err.Error(), "status": "failed"})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}
