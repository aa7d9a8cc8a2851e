package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/maauso/avmerge-api/internal/combine"
	"github.com/maauso/avmerge-api/internal/storage"
)

// StageStorage is the failed stage recorded when the result upload fails.
const StageStorage = "storage"

const (
	defaultTimeout       = 10 * time.Minute
	defaultMaxConcurrent = 2
	resultPrefix         = "results"
)

var (
	// ErrJobCancelled is the cancellation cause for a caller-requested cancel.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrShuttingDown is the cancellation cause used when the service stops.
	ErrShuttingDown = errors.New("service shutting down")
	// ErrJobFinished is returned when cancelling a job that already reached a terminal state.
	ErrJobFinished = errors.New("job already finished")
	// ErrJobRunning is returned when a job is processed twice concurrently.
	ErrJobRunning = errors.New("job is already running")
	// ErrResultNotReady is returned when a job has no stored result.
	ErrResultNotReady = errors.New("job result not available")
	// ErrInvalidTargetDuration is returned for a negative target duration.
	ErrInvalidTargetDuration = errors.New("target duration must not be negative")
)

// Combiner produces one combined clip per request.
type Combiner interface {
	Combine(ctx context.Context, req combine.Request) (combine.Result, error)
}

// CombineInput is the payload of a combine request.
type CombineInput struct {
	Video          []byte
	Audio          []byte
	TargetDuration float64
	Loop           *bool
}

func (in CombineInput) validate() error {
	if len(in.Video) == 0 || len(in.Audio) == 0 {
		return combine.ErrEmptyInput
	}
	if in.TargetDuration < 0 {
		return ErrInvalidTargetDuration
	}
	return nil
}

func (in CombineInput) request() combine.Request {
	return combine.Request{
		Video: in.Video,
		Audio: in.Audio,
		Options: combine.Options{
			TargetDuration: in.TargetDuration,
			Loop:           in.Loop,
		},
	}
}

// CombineService runs combine requests synchronously or as tracked jobs.
// A semaphore bounds the number of concurrent combines and every combine
// runs under the configured deadline.
type CombineService struct {
	repo     Repository
	combiner Combiner
	store    storage.Storage
	logger   *slog.Logger
	timeout  time.Duration
	sem      chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	closed  bool
	wg      sync.WaitGroup
}

// ServiceOption configures a CombineService.
type ServiceOption func(*CombineService)

// WithTimeout sets the deadline applied to each combine.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *CombineService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxConcurrent sets how many combines may run at once.
func WithMaxConcurrent(n int) ServiceOption {
	return func(s *CombineService) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *CombineService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCombineService creates a new CombineService.
func NewCombineService(repo Repository, combiner Combiner, store storage.Storage, opts ...ServiceOption) *CombineService {
	s := &CombineService{
		repo:     repo,
		combiner: combiner,
		store:    store,
		logger:   slog.Default(),
		timeout:  defaultTimeout,
		sem:      make(chan struct{}, defaultMaxConcurrent),
		running:  make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates the input and persists a new IN_QUEUE job.
func (s *CombineService) CreateJob(ctx context.Context, input CombineInput) (*Job, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	job := New()
	job.TargetDuration = input.TargetDuration
	job.Loop = input.Loop

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.Int("video_bytes", len(input.Video)),
		slog.Int("audio_bytes", len(input.Audio)),
		slog.Float64("target_duration", input.TargetDuration),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job.Clone(), nil
}

// Process creates a job and runs it to completion.
func (s *CombineService) Process(ctx context.Context, input CombineInput) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID, input)
}

// ProcessExistingJob runs a job created by CreateJob. It waits for a free
// slot, combines the inputs, stores the result and records the outcome on
// the job. The combine timeout starts once the slot is held; the wait
// itself ends only on cancellation or shutdown. The returned job reflects the final state; the error is the
// cause of a non-COMPLETED outcome.
func (s *CombineService) ProcessExistingJob(ctx context.Context, jobID string, input CombineInput) (*Job, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := s.register(jobID, cancel); err != nil {
		return nil, err
	}
	defer s.unregister(jobID)

	logger := s.logger.With(slog.String("job_id", jobID))

	if err := s.acquire(ctx); err != nil {
		return s.finish(ctx, logger, jobID, "", err)
	}
	defer s.releaseSlot()

	// the deadline covers the combine itself, not the wait for a slot
	ctx, cancelTimeout := context.WithTimeout(ctx, s.timeout)
	defer cancelTimeout()

	job, err := s.repo.Update(ctx, jobID, func(j *Job) error { return j.Start() })
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			logger.Info("job no longer queued, skipping",
				slog.String("status", string(job.Status)),
			)
			return job, nil
		}
		return nil, fmt.Errorf("start job: %w", err)
	}
	logger.Info("job started")

	res, err := s.combiner.Combine(ctx, input.request())
	if err != nil {
		return s.finish(ctx, logger, jobID, string(combine.StageOf(err)), err)
	}

	loc, err := s.store.Save(ctx, resultKey(jobID), bytes.NewReader(res.Data))
	if err != nil {
		return s.finish(ctx, logger, jobID, StageStorage, err)
	}

	job, err = s.repo.Update(context.WithoutCancel(ctx), jobID, func(j *Job) error {
		return j.Complete(Result{
			Location:      loc,
			VideoDuration: res.VideoDuration,
			AudioDuration: res.AudioDuration,
			RepeatCount:   res.Plan.RepeatCount,
		})
	})
	if err != nil {
		return job, fmt.Errorf("complete job: %w", err)
	}

	logger.Info("job completed",
		slog.String("key", loc.Key),
		slog.Int64("size", loc.Size),
		slog.Int("repeat_count", res.Plan.RepeatCount),
		slog.Duration("elapsed", time.Since(job.StartedAt)),
	)
	return job, nil
}

// finish records a non-successful outcome. The context cause decides
// between CANCELLED, TIMED_OUT and FAILED.
func (s *CombineService) finish(ctx context.Context, logger *slog.Logger, jobID, stage string, cause error) (*Job, error) {
	var update func(*Job) error
	status := StatusFailed

	switch ctxCause := context.Cause(ctx); {
	case ctx.Err() == nil:
		update = func(j *Job) error { return j.Fail(stage, cause.Error()) }
	case errors.Is(ctxCause, context.DeadlineExceeded):
		status = StatusTimedOut
		update = func(j *Job) error { return j.Timeout(stage) }
		cause = fmt.Errorf("%w: %w", context.DeadlineExceeded, cause)
	default:
		status = StatusCancelled
		update = func(j *Job) error { return j.Cancel(ctxCause.Error()) }
		cause = fmt.Errorf("%w: %w", ctxCause, cause)
	}

	job, err := s.repo.Update(context.WithoutCancel(ctx), jobID, update)
	if err != nil {
		logger.Error("failed to record job outcome",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}

	logger.Warn("job did not complete",
		slog.String("status", string(status)),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)
	return job, cause
}

// CombineNow runs one combine under the service's concurrency limit and
// deadline without creating a job. As for jobs, the deadline starts once a
// slot is held.
func (s *CombineService) CombineNow(ctx context.Context, input CombineInput) (combine.Result, error) {
	if err := input.validate(); err != nil {
		return combine.Result{}, err
	}

	if err := s.acquire(ctx); err != nil {
		return combine.Result{}, err
	}
	defer s.releaseSlot()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.combiner.Combine(ctx, input.request())
}

// GetJob retrieves a job by ID.
func (s *CombineService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *CombineService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Cancel stops a job. A running or waiting job is interrupted and records
// CANCELLED once its combine has unwound; a job that is not being processed
// is cancelled directly.
func (s *CombineService) Cancel(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()

	if ok {
		cancel(ErrJobCancelled)
		s.logger.Info("job cancellation requested", slog.String("job_id", id))
		return s.repo.FindByID(ctx, id)
	}

	return s.repo.Update(ctx, id, func(j *Job) error {
		if j.IsTerminal() {
			return ErrJobFinished
		}
		return j.Cancel(ErrJobCancelled.Error())
	})
}

// OpenResult returns the stored result of a COMPLETED job.
// The caller is responsible for closing the returned ReadCloser.
func (s *CombineService) OpenResult(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted || job.Result.Location.Key == "" {
		return nil, job, ErrResultNotReady
	}

	r, err := s.store.Open(ctx, job.Result.Location.Key)
	if err != nil {
		return nil, job, fmt.Errorf("open result: %w", err)
	}
	return r, job, nil
}

// DeleteResult removes the stored result of a job and clears its location.
func (s *CombineService) DeleteResult(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Result.Location.Key == "" {
		return job, ErrResultNotReady
	}

	if err := s.store.Delete(ctx, job.Result.Location.Key); err != nil {
		return job, fmt.Errorf("delete result: %w", err)
	}

	s.logger.Info("job result deleted",
		slog.String("job_id", id),
		slog.String("key", job.Result.Location.Key),
	)
	return s.repo.Update(ctx, id, func(j *Job) error {
		j.ClearLocation()
		return nil
	})
}

// Shutdown cancels every job in flight and waits until they have recorded
// their outcome or ctx is done. Jobs processed after Shutdown are refused.
func (s *CombineService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.running {
		cancel(ErrShuttingDown)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

func (s *CombineService) register(id string, cancel context.CancelCauseFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShuttingDown
	}
	if _, ok := s.running[id]; ok {
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	s.running[id] = cancel
	s.wg.Add(1)
	return nil
}

func (s *CombineService) unregister(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *CombineService) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for combine slot: %w", ctx.Err())
	}
}

func (s *CombineService) releaseSlot() {
	<-s.sem
}

func resultKey(jobID string) string {
	return path.Join(resultPrefix, jobID+".mp4")
}
