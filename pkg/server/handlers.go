package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wavescribe/wavescribe/pkg/format"
	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/scheduler"
	"github.com/wavescribe/wavescribe/pkg/types"
)

type submitRequest struct {
	InputPath string        `json:"input_path"`
	Options   types.Options `json:"options"`
}

type submitBatchRequest struct {
	InputPaths []string      `json:"input_paths"`
	Options    types.Options `json:"options"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitJob(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.InputPath == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "input_path is required"})
	}
	jobID, err := s.sched.Submit(req.InputPath, req.Options)
	if err != nil {
		return submissionError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleSubmitBatch(c echo.Context) error {
	var req submitBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	batchID, jobIDs, err := s.sched.SubmitBatch(req.InputPaths, req.Options)
	if err != nil {
		return submissionError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"job_ids":  jobIDs,
	})
}

func submissionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrShuttingDown):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleGetJob(c echo.Context) error {
	job, err := s.sched.GetJob(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleListJobs(c echo.Context) error {
	filter := jobstore.Filter{
		State:   jobstore.State(c.QueryParam("state")),
		BatchID: c.QueryParam("batch_id"),
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	jobs, total := s.sched.ListJobs(filter, limit, offset)
	return c.JSON(http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleCancelJob(c echo.Context) error {
	if err := s.sched.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetTranscript(c echo.Context) error {
	job, err := s.sched.GetJob(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if job.Transcript == nil {
		return c.JSON(http.StatusConflict, errorResponse{
			Error: fmt.Sprintf("job is %s, transcript not available", job.State),
		})
	}
	f, err := format.Parse(c.QueryParam("format"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	rendered, err := format.Render(job.Transcript, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	contentType := "text/plain; charset=utf-8"
	if f == format.JSON {
		contentType = "application/json"
	}
	return c.Blob(http.StatusOK, contentType, []byte(rendered))
}

func (s *Server) handleGetBatch(c echo.Context) error {
	batch, err := s.sched.GetBatch(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, batch)
}

func (s *Server) handleCancelBatch(c echo.Context) error {
	if err := s.sched.CancelBatch(c.Param("id")); err != nil {
		if errors.Is(err, jobstore.ErrBatchNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.Snapshot())
}
