// Package deploy sequences one deploy run: package, upload, authenticate,
// start the import job and poll it to a single outcome.
package deploy

import (
	"context"
	"errors"
	"impexdeploy/internal/apperrors"
	"impexdeploy/internal/artifact"
	"impexdeploy/internal/config"
	"impexdeploy/internal/job"
	"impexdeploy/internal/observability"
	"impexdeploy/pkg/cloudevent"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// EventSource is the CloudEvents source of outcome notifications.
const EventSource = "impex-deploy"

const notifyTimeout = 30 * time.Second

// Uploader transfers a local archive and returns its remote name.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Authenticator exchanges client credentials for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, clientID, clientSecret string) (string, error)
}

// Launcher starts the import job for an uploaded archive.
type Launcher interface {
	StartImport(ctx context.Context, token, fileName string) (job.Handle, error)
}

// Poller drives a started execution to its terminal outcome.
type Poller interface {
	Run(ctx context.Context, token string, handle job.Handle) (*job.Outcome, error)
}

// Notifier delivers the outcome event of a run.
type Notifier interface {
	Notify(ctx context.Context, event *cloudevent.CloudEvent) error
}

// Deps are the collaborators of an Orchestrator. Metrics and Notifier are optional.
type Deps struct {
	Packager      artifact.Packager
	Uploader      Uploader
	Authenticator Authenticator
	Launcher      Launcher
	Poller        Poller
	Metrics       *observability.Metrics
	Notifier      Notifier
}

// Orchestrator runs the deploy workflow for one configuration.
type Orchestrator struct {
	cfg   config.Config
	deps  Deps
	runID string
}

// New creates an Orchestrator with a fresh run id.
func New(cfg config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		runID: uuid.NewString(),
	}
}

// RunID returns the correlation id of the run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes the workflow and returns its single outcome. Stages run in
// order and the first failure ends the run. The scratch directory created by
// packaging is removed once the upload has finished, whatever its result.
func (o *Orchestrator) Run(ctx context.Context) *job.Outcome {
	logger := slog.With("runId", o.runID, "host", o.cfg.Hostname)
	start := time.Now()

	outcome, artifactName := o.run(ctx, logger)

	logger.Info("Deploy finished", "outcome", outcome.Kind, "duration", time.Since(start).Round(time.Millisecond))
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordOutcome(ctx, string(outcome.Kind))
	}
	o.notify(ctx, outcome, artifactName, logger)
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger) (*job.Outcome, string) {
	var bundle *artifact.Bundle
	err := o.stage(ctx, observability.StagePackage, func() error {
		var err error
		bundle, err = o.deps.Packager.Package(ctx, o.cfg.SourcePath)
		return err
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrPackage) {
			err = apperrors.Package("package "+o.cfg.SourcePath, err)
		}
		logger.Error("Packaging failed", "source", o.cfg.SourcePath, "error", err)
		return failed(job.KindPackageError, err), ""
	}
	defer o.cleanup(bundle, logger)

	logger = logger.With("artifact", bundle.Name)
	if info, err := os.Stat(bundle.Path); err == nil && o.deps.Metrics != nil {
		o.deps.Metrics.RecordArtifactSize(ctx, info.Size())
	}

	var remoteName string
	err = o.stage(ctx, observability.StageUpload, func() error {
		var err error
		remoteName, err = o.deps.Uploader.Upload(ctx, bundle.Path)
		return err
	})
	o.cleanup(bundle, logger)
	if err != nil {
		logger.Error("Upload failed", "error", err)
		return failed(job.KindTransportError, err), bundle.Name
	}
	logger.Info("Archive uploaded", "remote", remoteName)

	var token string
	err = o.stage(ctx, observability.StageAuthenticate, func() error {
		var err error
		token, err = o.deps.Authenticator.Authenticate(ctx, o.cfg.ClientID, o.cfg.ClientSecret)
		return err
	})
	if err != nil {
		if o.cfg.UsesPlaceholder() {
			logger.Warn("Client credentials are not configured; the placeholder was rejected")
		}
		logger.Error("Authorization failed", "error", err)
		return failed(job.KindAuthError, err), remoteName
	}
	logger.Info("Authorization successful")

	var handle job.Handle
	err = o.stage(ctx, observability.StageLaunch, func() error {
		var err error
		handle, err = o.deps.Launcher.StartImport(ctx, token, remoteName)
		return err
	})
	if err != nil {
		logger.Error("Could not start import job", "error", err)
		return failed(job.KindLaunchError, err), remoteName
	}

	var outcome *job.Outcome
	err = o.stage(ctx, observability.StagePoll, func() error {
		var err error
		outcome, err = o.deps.Poller.Run(ctx, token, handle)
		return err
	})
	if err != nil {
		outcome = failed(job.KindPollError, err)
		outcome.Handle = handle
		return outcome, remoteName
	}
	return outcome, remoteName
}

func (o *Orchestrator) stage(ctx context.Context, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordStage(ctx, name, err, time.Since(start))
	}
	return err
}

func (o *Orchestrator) cleanup(bundle *artifact.Bundle, logger *slog.Logger) {
	if err := bundle.Cleanup(); err != nil {
		logger.Warn("Failed to remove scratch directory", "dir", bundle.ScratchDir, "error", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, outcome *job.Outcome, artifactName string, logger *slog.Logger) {
	if o.deps.Notifier == nil {
		return
	}
	event := job.NewEventBuilder(o.runID, EventSource, o.cfg.Hostname).BuildOutcomeEvent(outcome, artifactName)

	// The run may have been interrupted; the notification still goes out.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	start := time.Now()
	err := o.deps.Notifier.Notify(notifyCtx, event)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordStage(ctx, observability.StageNotify, err, time.Since(start))
		o.deps.Metrics.RecordNotification(ctx, err == nil)
	}
	if err != nil {
		logger.Warn("Outcome notification failed", "type", event.Type, "error", err)
		return
	}
	logger.Debug("Outcome notification sent", "type", event.Type)
}

func failed(kind job.Kind, err error) *job.Outcome {
	return &job.Outcome{Kind: kind, Err: err}
}
