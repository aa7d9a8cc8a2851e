// Package server provides the HTTP API for combining video and audio.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CombineRequest is the HTTP request body for POST /combine and POST /jobs.
type CombineRequest struct {
	// VideoBase64 is the base64-encoded video asset.
	VideoBase64 string `json:"video_base64" validate:"required,base64"`
	// AudioBase64 is the base64-encoded audio asset.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// TargetDuration caps the output length in seconds. Zero or omitted means the audio length.
	TargetDuration float64 `json:"target_duration,omitempty" validate:"gte=0,lte=86400"`
	// Loop controls whether a short video is repeated. Defaults to true.
	Loop *bool `json:"loop,omitempty"`
}

// CombineResponse is the HTTP response for a synchronous combine.
type CombineResponse struct {
	// VideoBase64 is the base64-encoded combined MP4.
	VideoBase64 string `json:"video_base64"`
	// Duration is the expected output length in seconds.
	Duration float64 `json:"duration"`
	// RepeatCount is how many times the video input was played.
	RepeatCount int `json:"repeat_count"`
	// VideoDuration is the probed length of the video input.
	VideoDuration float64 `json:"video_duration"`
	// AudioDuration is the probed length of the audio input.
	AudioDuration float64 `json:"audio_duration"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResultResponse describes the stored output of a completed job.
type JobResultResponse struct {
	Key           string  `json:"key,omitempty"`
	URL           string  `json:"url,omitempty"`
	Size          int64   `json:"size"`
	VideoDuration float64 `json:"video_duration"`
	AudioDuration float64 `json:"audio_duration"`
	RepeatCount   int     `json:"repeat_count"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	FailedStage string             `json:"failed_stage,omitempty"`
	Error       string             `json:"error,omitempty"`
	Result      *JobResultResponse `json:"result,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for GET /jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
