package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/avmerge-api/internal/combine"
	"github.com/maauso/avmerge-api/internal/job"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.CombineService
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.CombineService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Combine handles POST /combine requests. The combined clip is returned in
// the response body.
func (h *Handlers) Combine(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCombineRequest(w, r)
	if !ok {
		return
	}

	res, err := h.service.CombineNow(r.Context(), input)
	if err != nil {
		h.logger.Warn("combine failed",
			slog.String("stage", string(combine.StageOf(err))),
			slog.String("error", err.Error()),
		)
		writeCombineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CombineResponse{
		VideoBase64:   base64.StdEncoding.EncodeToString(res.Data),
		Duration:      outputDuration(res, input),
		RepeatCount:   res.Plan.RepeatCount,
		VideoDuration: res.VideoDuration,
		AudioDuration: res.AudioDuration,
	})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCombineRequest(w, r)
	if !ok {
		return
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeCombineError(w, err)
		return
	}

	// Detach from the request so the job outlives it
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string, inp job.CombineInput) {
			if _, processErr := h.service.ProcessExistingJob(ctx, jobID, inp); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, input)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Float64("target_duration", input.TargetDuration),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// CancelJob handles DELETE /jobs/{id} requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	cancelled, err := h.service.Cancel(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	h.logger.Info("job cancel requested", slog.String("job_id", jobID))
	writeJSON(w, http.StatusAccepted, toJobResponse(cancelled))
}

// GetJobResult handles GET /jobs/{id}/result requests by streaming the stored clip.
func (h *Handlers) GetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	rc, foundJob, err := h.service.OpenResult(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+foundJob.ID+`.mp4"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream job result",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJobResult handles DELETE /jobs/{id}/result requests.
func (h *Handlers) DeleteJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if _, err := h.service.DeleteResult(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeCombineRequest parses and validates a combine body. It writes the
// error response itself and reports whether the caller should continue.
func (h *Handlers) decodeCombineRequest(w http.ResponseWriter, r *http.Request) (job.CombineInput, bool) {
	var req CombineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "PAYLOAD_TOO_LARGE")
			return job.CombineInput{}, false
		}
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return job.CombineInput{}, false
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return job.CombineInput{}, false
	}

	video, err := base64.StdEncoding.DecodeString(req.VideoBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "video_base64 is not valid base64", "VALIDATION_ERROR")
		return job.CombineInput{}, false
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_base64 is not valid base64", "VALIDATION_ERROR")
		return job.CombineInput{}, false
	}

	return job.CombineInput{
		Video:          video,
		Audio:          audio,
		TargetDuration: req.TargetDuration,
		Loop:           req.Loop,
	}, true
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrJobFinished):
		writeError(w, http.StatusConflict, "job already finished", "JOB_FINISHED")
	case errors.Is(err, job.ErrResultNotReady):
		writeError(w, http.StatusConflict, "job result not available", "RESULT_NOT_READY")
	default:
		h.logger.Error("job request failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "job request failed", "JOB_FETCH_FAILED")
	}
}

// stageCodes maps failed combine stages to HTTP status and error code.
var stageCodes = map[combine.Stage]struct {
	status int
	code   string
}{
	combine.StageStaging:   {http.StatusInternalServerError, "STAGING_FAILED"},
	combine.StageProbe:     {http.StatusUnprocessableEntity, "PROBE_FAILED"},
	combine.StageAlignment: {http.StatusUnprocessableEntity, "ALIGNMENT_FAILED"},
	combine.StageMux:       {http.StatusInternalServerError, "MUX_FAILED"},
	combine.StageReadBack:  {http.StatusInternalServerError, "READBACK_FAILED"},
}

// writeCombineError writes the response for a failed combine.
func writeCombineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, combine.ErrEmptyInput), errors.Is(err, job.ErrInvalidTargetDuration):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "combine timed out", "TIMEOUT")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "combine cancelled", "CANCELLED")
	default:
		if sc, ok := stageCodes[combine.StageOf(err)]; ok {
			writeError(w, sc.status, err.Error(), sc.code)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// outputDuration is the length of the produced clip: the audio length,
// capped by the target, or the video length when it was not looped and is
// shorter.
func outputDuration(res combine.Result, input job.CombineInput) float64 {
	d := res.AudioDuration
	if input.TargetDuration > 0 && input.TargetDuration < d {
		d = input.TargetDuration
	}
	if !res.Plan.LoopVideo && res.VideoDuration < d {
		d = res.VideoDuration
	}
	return d
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		FailedStage: j.FailedStage,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   optionalTime(j.StartedAt),
		CompletedAt: optionalTime(j.CompletedAt),
	}
	if j.Status == job.StatusCompleted {
		resp.Result = &JobResultResponse{
			Key:           j.Result.Location.Key,
			URL:           j.Result.Location.URL,
			Size:          j.Result.Location.Size,
			VideoDuration: j.Result.VideoDuration,
			AudioDuration: j.Result.AudioDuration,
			RepeatCount:   j.Result.RepeatCount,
		}
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
