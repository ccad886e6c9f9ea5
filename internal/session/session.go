// Package session owns the application lifecycle around auto backups: it
// records play sessions and runs the orchestrator when the application resumes.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tis24dev/savesync/internal/catalog"
	"github.com/tis24dev/savesync/internal/config"
	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/internal/metrics"
	"github.com/tis24dev/savesync/internal/orchestrator"
	"github.com/tis24dev/savesync/internal/version"
)

// Runner runs one auto backup attempt.
type Runner interface {
	Run(ctx context.Context, settings orchestrator.Settings, title *catalog.Title, state *orchestrator.RunState) orchestrator.Outcome
}

// Options configures a Session. Catalog, Runner and Settings are required.
type Options struct {
	Settings orchestrator.Settings
	Catalog  *catalog.Store
	Runner   Runner
	Logger   *logging.Logger

	// Metrics receives a snapshot after every attempt when set.
	Metrics *metrics.PrometheusExporter

	// OnOutcome is called after every attempt.
	OnOutcome func(orchestrator.Outcome)

	Now func() time.Time
}

// Session is the application session context. It owns the run state.
type Session struct {
	mu      sync.Mutex
	opts    Options
	logger  *logging.Logger
	state   *orchestrator.RunState
	current string
}

// New creates a session, loading the durable watermark from the catalog.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Catalog == nil || opts.Runner == nil {
		return nil, errors.New("session requires a catalog and a runner")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	watermark, err := opts.Catalog.LoadWatermark(ctx)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("Auto backup watermark: %s", formatWatermark(watermark))

	return &Session{
		opts:   opts,
		logger: opts.Logger,
		state:  orchestrator.NewRunState(watermark),
	}, nil
}

// SettingsFromConfig maps the configuration to orchestrator settings.
func SettingsFromConfig(cfg *config.Config) orchestrator.Settings {
	return orchestrator.Settings{
		AutoBackupEnabled:    cfg.AutoBackupEnabled,
		WifiOnly:             cfg.WifiOnly,
		Mode:                 cfg.BackupMode,
		IncludeManualSave:    cfg.BackupManualSave,
		IncludeAutoSave:      cfg.BackupAutoSave,
		IncludeCartridgeSave: cfg.BackupIngameSave,
		RotatingSlotLimit:    cfg.RotatingBackups,
		AutoSaveLoad:         cfg.AutoSaveLoad,
	}
}

// State returns a copy of the run state.
func (s *Session) State() orchestrator.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.state
}

// CurrentTitle is the ROM file name of the title played in this session.
func (s *Session) CurrentTitle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// TitlePlayed records that fileName was played now and arms the next resume.
func (s *Session) TitlePlayed(ctx context.Context, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titlePlayedLocked(ctx, fileName)
}

func (s *Session) titlePlayedLocked(ctx context.Context, fileName string) error {
	if err := s.opts.Catalog.MarkPlayed(ctx, fileName, s.opts.Now()); err != nil {
		return err
	}
	s.current = fileName
	s.state.MarkPending()
	s.logger.Debug("Title played: %s", fileName)
	return nil
}

// ForcePending arms the next resume without a new play session.
func (s *Session) ForcePending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MarkPending()
}

// Resume is the application-resume hook. Nothing escapes it: failures,
// including panics, end up in the returned outcome and the log.
func (s *Session) Resume(ctx context.Context) (out orchestrator.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.state.PendingCheck = false
			s.logger.Error("Auto backup aborted by panic: %v", r)
			out = orchestrator.Failed(orchestrator.ReasonInternal, fmt.Errorf("panic: %v", r))
		}
		s.afterRun(out)
	}()

	title := s.loadTitle(ctx)
	return s.opts.Runner.Run(ctx, s.opts.Settings, title, s.state)
}

func (s *Session) loadTitle(ctx context.Context) *catalog.Title {
	if !s.state.PendingCheck {
		return nil
	}
	var (
		title *catalog.Title
		err   error
	)
	if s.current != "" {
		title, err = s.opts.Catalog.GetTitle(ctx, s.current)
	} else {
		title, err = s.opts.Catalog.MostRecentTitle(ctx)
	}
	if err != nil {
		if errors.Is(err, catalog.ErrTitleNotFound) {
			s.logger.Debug("No title to back up: %v", err)
		} else {
			s.logger.Warning("Failed to load played title: %v", err)
		}
		return nil
	}
	return title
}

func (s *Session) afterRun(out orchestrator.Outcome) {
	if s.opts.OnOutcome != nil {
		s.opts.OnOutcome(out)
	}
	if s.opts.Metrics == nil || out.Reason == orchestrator.ReasonNotPending {
		return
	}
	if err := s.opts.Metrics.Export(s.metricsFor(out)); err != nil {
		s.logger.Warning("Failed to export metrics: %v", err)
	}
}

func (s *Session) metricsFor(out orchestrator.Outcome) *metrics.BackupMetrics {
	host, _ := os.Hostname()
	return &metrics.BackupMetrics{
		Hostname:      host,
		Version:       version.String(),
		RunID:         out.RunID,
		Title:         s.current,
		Mode:          string(out.Mode),
		Result:        out.Kind.String(),
		Reason:        string(out.Reason),
		StartTime:     out.StartedAt,
		EndTime:       out.FinishedAt,
		FilesUploaded: out.Uploaded,
		ErrorCount:    len(out.Errors),
		RotationIndex: out.RotationIndex,
		Watermark:     s.state.LastAutoBackupAt,
	}
}

func formatWatermark(t time.Time) string {
	if t.Equal(catalog.NeverSaved) {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
