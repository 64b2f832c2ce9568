package job

import (
	"context"
	"errors"
	"fmt"
	"impexdeploy/internal/apperrors"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is used when PollerConfig.Interval is not positive.
const DefaultPollInterval = 5 * time.Second

// StatusQuery fetches the current status of an execution.
type StatusQuery interface {
	ExecutionStatus(ctx context.Context, token string, handle Handle) (*Snapshot, error)
}

// LogFetcher resolves and downloads execution logs.
type LogFetcher interface {
	LogURL(logFilePath string) string
	FetchLog(ctx context.Context, logURL string) (string, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Query    StatusQuery
	Logs     LogFetcher    // nil skips log retrieval
	Interval time.Duration // time between status checks
	Timeout  time.Duration // 0 polls until the job finishes
	// OnCheck is called after every completed status check that was not
	// superseded by an earlier resolution.
	OnCheck func(state State, err error)
}

// Poller drives one execution from Running to a terminal state.
type Poller struct {
	query    StatusQuery
	logs     LogFetcher
	interval time.Duration
	timeout  time.Duration
	onCheck  func(State, error)
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout < 0 {
		timeout = 0
	}
	return &Poller{
		query:    cfg.Query,
		logs:     cfg.Logs,
		interval: interval,
		timeout:  timeout,
		onCheck:  cfg.OnCheck,
	}
}

type checkResult struct {
	snap *Snapshot
	err  error
}

// Run checks the execution immediately and then on every interval until it
// finishes. Checks run concurrently with the ticker; the first terminal
// result wins and every later one is discarded. A failed check ends polling
// with a poll error.
//
// A finished execution yields an Outcome of KindSuccess or KindFailure with
// the log URL and the best-effort log summary. The returned error is non-nil
// only when polling itself failed.
func (p *Poller) Run(ctx context.Context, token string, handle Handle) (*Outcome, error) {
	logger := slog.With("jobId", handle.JobID, "executionId", handle.ExecutionID)

	var (
		pollCtx context.Context
		cancel  context.CancelFunc
	)
	if p.timeout > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		pollCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan checkResult, 1)
	var once sync.Once
	resolve := func(r checkResult) {
		once.Do(func() {
			done <- r
			cancel()
		})
	}

	var wg sync.WaitGroup
	check := func() {
		defer wg.Done()
		snap, err := p.query.ExecutionStatus(pollCtx, token, handle)
		if pollCtx.Err() != nil {
			return
		}
		if err != nil {
			p.observe(StateRunning, err)
			resolve(checkResult{err: err})
			return
		}
		state := snap.State()
		p.observe(state, nil)
		if state == StateRunning {
			logger.Info("Job still running", "status", snap.ExecutionStatus)
			return
		}
		resolve(checkResult{snap: snap})
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logger.Info("Checking job status", "interval", p.interval)
	wg.Add(1)
	go check()

	var res checkResult
wait:
	for {
		select {
		case res = <-done:
			break wait
		case <-pollCtx.Done():
			select {
			case res = <-done:
			default:
				res = checkResult{err: pollCtx.Err()}
			}
			break wait
		case <-ticker.C:
			wg.Add(1)
			go check()
		}
	}
	cancel()
	ticker.Stop()
	wg.Wait()

	if res.err != nil {
		return nil, p.pollError(ctx, handle, res.err, logger)
	}
	return p.finish(ctx, handle, res.snap, logger), nil
}

func (p *Poller) pollError(ctx context.Context, handle Handle, err error, logger *slog.Logger) error {
	switch {
	case ctx.Err() != nil:
		logger.Warn("Polling cancelled", "error", ctx.Err())
		return apperrors.Poll("Polling cancelled: "+ctx.Err().Error(), ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("Job did not finish in time", "timeout", p.timeout)
		return apperrors.Poll(fmt.Sprintf("Job %s did not finish within %s", handle.JobID, p.timeout), err)
	default:
		logger.Error("Error checking job status", "error", err)
		return apperrors.Poll(fmt.Sprintf("Error checking status for %s: %v", handle.JobID, err), err)
	}
}

func (p *Poller) finish(ctx context.Context, handle Handle, snap *Snapshot, logger *slog.Logger) *Outcome {
	outcome := &Outcome{
		Handle: handle,
		Steps:  snap.Steps,
	}
	if p.logs != nil {
		outcome.LogURL = p.logs.LogURL(snap.LogFilePath)
	}
	outcome.Summary = p.summary(ctx, outcome.LogURL, logger)

	if snap.State() == StateFinishedSuccess {
		logger.Info("Job finished", "exitStatus", snap.ExitStatus)
		outcome.Kind = KindSuccess
		return outcome
	}

	logger.Error("Job finished with error", "exitStatus", snap.ExitStatus, "steps", len(snap.Steps))
	outcome.Kind = KindFailure
	outcome.Err = apperrors.ImportFailed(handle.JobID, handle.ExecutionID)
	return outcome
}

// summary fetches the execution log and extracts its summary block.
// Any failure yields an empty summary.
func (p *Poller) summary(ctx context.Context, logURL string, logger *slog.Logger) string {
	if p.logs == nil {
		return ""
	}
	if logURL == "" {
		logger.Warn("Job reported no log file")
		return ""
	}
	content, err := p.logs.FetchLog(ctx, logURL)
	if err != nil {
		logger.Warn("Could not fetch job log", "url", logURL, "error", err)
		return ""
	}
	return ExtractSummary(content)
}

func (p *Poller) observe(state State, err error) {
	if p.onCheck != nil {
		p.onCheck(state, err)
	}
}
