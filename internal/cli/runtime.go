package cli

import (
	"context"
	"os"

	"github.com/tis24dev/savesync/internal/archive"
	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/config"
	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/internal/metrics"
	"github.com/tis24dev/savesync/internal/network"
	"github.com/tis24dev/savesync/internal/orchestrator"
	"github.com/tis24dev/savesync/internal/remote"
	"github.com/tis24dev/savesync/internal/savestore"
	"github.com/tis24dev/savesync/internal/session"
	"github.com/tis24dev/savesync/internal/status"
	"github.com/tis24dev/savesync/internal/types"
)

// Overridable in tests.
var (
	newNetworkStatus = func(cfg *config.Config, logger *logging.Logger) orchestrator.Network {
		return network.New(logger, network.WithProbe(cfg.NetworkProbeAddress, cfg.NetworkProbeTimeout))
	}
	statusOutput = os.Stderr
)

// runtime holds everything a backup command needs.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	catalog *catalog.Store
	session *session.Session
	network orchestrator.Network
	remote  remote.Client
}

func (r *runtime) Close() {
	if r.catalog != nil {
		if err := r.catalog.Close(); err != nil {
			r.logger.Warning("Close catalog: %v", err)
		}
	}
}

// openCatalog opens the catalog configured in cfg.
func openCatalog(cfg *config.Config) (*catalog.Store, error) {
	store, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, withCode(types.ExitCatalogError, err)
	}
	return store, nil
}

// buildRuntime wires the catalog, the remote, the save store and the
// orchestrator into a session.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger, onOutcome func(orchestrator.Outcome)) (*runtime, error) {
	store, err := openCatalog(cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, catalog: store}

	rt.remote, err = remote.New(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, withCode(types.ExitRemoteError, err)
	}
	rt.network = newNetworkStatus(cfg, logger)

	deps := orchestrator.Deps{
		Logger:     logger,
		Network:    rt.network,
		Remote:     rt.remote,
		Files:      savestore.New(cfg.SaveRoot(), savestore.DefaultTimeout),
		Titles:     store,
		Watermarks: store,
		Sink: status.Multi{
			status.NewLogSink(logger),
			status.NewTerminalSink(statusOutput),
		},
		Messenger: status.NewConsoleMessenger(statusOutput, logger),
	}

	if cfg.EncryptArchive {
		enc, err := archive.NewEncrypter(archive.RecipientSource{
			Recipients:    cfg.AgeRecipients,
			RecipientFile: cfg.AgeRecipientFile,
			Passphrase:    cfg.AgePassphrase,
		})
		if err != nil {
			rt.Close()
			return nil, withCode(types.ExitConfigError, err)
		}
		logger.Debug("Archive encryption enabled (%d recipient(s))", enc.Recipients())
		deps.Encrypter = enc
	}

	var exporter *metrics.PrometheusExporter
	if cfg.MetricsEnabled {
		exporter = metrics.NewPrometheusExporter(cfg.MetricsPath, logger)
	}

	rt.session, err = session.New(ctx, session.Options{
		Settings:  session.SettingsFromConfig(cfg),
		Catalog:   store,
		Runner:    orchestrator.New(deps),
		Logger:    logger,
		Metrics:   exporter,
		OnOutcome: onOutcome,
	})
	if err != nil {
		rt.Close()
		return nil, withCode(types.ExitCatalogError, err)
	}
	return rt, nil
}
