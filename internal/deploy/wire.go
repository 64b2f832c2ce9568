package deploy

import (
	"context"
	"impexdeploy/internal/artifact"
	"impexdeploy/internal/config"
	"impexdeploy/internal/job"
	"impexdeploy/internal/observability"
	"impexdeploy/internal/ocapi"
	"impexdeploy/internal/webdav"
	"impexdeploy/pkg/cloudevent"
	"net/http"
)

// WireOptions overrides the network setup of Wire.
type WireOptions struct {
	HTTPClient *http.Client // nil builds a client from the settings
	TokenURL   string       // overrides the account manager endpoint
	Metrics    *observability.Metrics
}

// Wire builds the production collaborators for cfg.
func Wire(cfg config.Config, s config.Settings, opts WireOptions) Deps {
	s = s.WithDefaults()
	client := httpClient(s, opts)

	var packager artifact.Packager = artifact.Zipper{}
	if s.DoNotZip {
		packager = artifact.Prebuilt{}
	}

	dav := webdav.NewClient(webdav.Config{
		Host:       cfg.Hostname,
		Username:   cfg.Username,
		Password:   cfg.Password,
		HTTPClient: client,
		MaxRetries: s.UploadRetries,
	})
	control := ocapi.NewClient(ocapi.Config{
		Host:           cfg.Hostname,
		ClientID:       cfg.ClientID,
		APIVersion:     s.APIVersion,
		AccountManager: s.AccountManager,
		TokenURL:       opts.TokenURL,
		HTTPClient:     client,
	})

	pollerCfg := job.PollerConfig{
		Query:    control,
		Logs:     dav,
		Interval: s.PollInterval,
		Timeout:  s.PollTimeout,
	}
	if m := opts.Metrics; m != nil {
		pollerCfg.OnCheck = func(state job.State, err error) {
			m.RecordStatusCheck(context.Background(), string(state), err)
		}
	}

	deps := Deps{
		Packager:      packager,
		Uploader:      dav,
		Authenticator: control,
		Launcher:      control,
		Poller:        job.NewPoller(pollerCfg),
		Metrics:       opts.Metrics,
	}
	if s.NotifyURL != "" {
		deps.Notifier = &WebhookNotifier{
			URL:        s.NotifyURL,
			SigningKey: s.NotifyKey,
			Sender:     cloudevent.NewSender(nil, s.HTTPTimeout),
		}
	}
	return deps
}

// httpClient returns the client shared by the WebDAV and control-plane
// calls. The HTTP timeout bounds the wait for response headers, not the
// whole transfer.
func httpClient(s config.Settings, opts WireOptions) *http.Client {
	var client http.Client
	if opts.HTTPClient != nil {
		client = *opts.HTTPClient
	} else {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = s.HTTPTimeout
		client.Transport = transport
	}
	if opts.Metrics != nil {
		client.Transport = opts.Metrics.InstrumentTransport(client.Transport)
	}
	return &client
}
