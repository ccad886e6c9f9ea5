package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/savesync/internal/logging"
	"github.com/tis24dev/savesync/pkg/utils"
)

// metricsFileName is the textfile picked up by node_exporter.
const metricsFileName = "savesync_auto_backup.prom"

// BackupMetrics is the snapshot of the last auto backup attempt.
type BackupMetrics struct {
	Hostname string
	Version  string
	RunID    string
	Title    string
	Mode     string

	// Result is the outcome kind (skipped, succeeded, partially_failed, failed)
	// and Reason its skip or failure reason.
	Result string
	Reason string

	StartTime time.Time
	EndTime   time.Time

	FilesUploaded int
	ErrorCount    int
	RotationIndex int
	Watermark     time.Time
}

// Status maps the result to 0=ok, 1=partial, 2=failed.
func (m *BackupMetrics) Status() int {
	switch m.Result {
	case "failed":
		return 2
	case "partially_failed":
		return 1
	default:
		return 0
	}
}

// PrometheusExporter writes backup metrics in Prometheus textfile format for node_exporter.
type PrometheusExporter struct {
	textfileDir string
	logger      *logging.Logger
}

// NewPrometheusExporter creates a new PrometheusExporter using the provided directory.
func NewPrometheusExporter(textfileDir string, logger *logging.Logger) *PrometheusExporter {
	return &PrometheusExporter{
		textfileDir: strings.TrimRight(textfileDir, "/"),
		logger:      logger,
	}
}

// Path returns the textfile written by Export.
func (pe *PrometheusExporter) Path() string {
	return filepath.Join(pe.textfileDir, metricsFileName)
}

// Export writes the given metrics snapshot to savesync_auto_backup.prom in textfileDir.
func (pe *PrometheusExporter) Export(m *BackupMetrics) error {
	if pe == nil || m == nil {
		return nil
	}

	if pe.textfileDir == "" {
		return fmt.Errorf("metrics textfile directory is empty")
	}

	if err := utils.EnsureDir(pe.textfileDir); err != nil {
		return fmt.Errorf("create metrics directory %s: %w", pe.textfileDir, err)
	}

	finalPath := pe.Path()
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create metrics file %s: %w", tmpPath, err)
	}
	defer f.Close()

	writeMetric := func(name, help, value string) {
		fmt.Fprintf(f, "# HELP %s %s\n", name, help)
		fmt.Fprintf(f, "# TYPE %s gauge\n", name)
		fmt.Fprintf(f, "%s %s\n", name, value)
	}

	duration := m.EndTime.Sub(m.StartTime)
	if m.EndTime.IsZero() || duration < 0 {
		duration = 0
	}

	writeMetric("savesync_auto_backup_start_time_seconds",
		"Unix timestamp of the last auto backup attempt",
		fmt.Sprintf("%d", unixOrZero(m.StartTime)))
	writeMetric("savesync_auto_backup_end_time_seconds",
		"Unix timestamp of the end of the last auto backup attempt",
		fmt.Sprintf("%d", unixOrZero(m.EndTime)))
	writeMetric("savesync_auto_backup_duration_seconds",
		"Duration of the last auto backup attempt in seconds",
		fmt.Sprintf("%.2f", duration.Seconds()))
	writeMetric("savesync_auto_backup_status",
		"Status of the last auto backup attempt (0=ok,1=partial,2=failed)",
		fmt.Sprintf("%d", m.Status()))
	writeMetric("savesync_auto_backup_files_uploaded",
		"Save files transferred by the last auto backup attempt",
		fmt.Sprintf("%d", m.FilesUploaded))
	writeMetric("savesync_auto_backup_errors_total",
		"Errors collected by the last auto backup attempt",
		fmt.Sprintf("%d", m.ErrorCount))
	writeMetric("savesync_auto_backup_rotation_index",
		"Rotation slot used by the last rotating backup (0 when none)",
		fmt.Sprintf("%d", m.RotationIndex))
	writeMetric("savesync_auto_backup_watermark_seconds",
		"Unix timestamp of the backup watermark",
		fmt.Sprintf("%d", unixOrZero(m.Watermark)))

	fmt.Fprintf(f, "# HELP savesync_auto_backup_result Result of the last auto backup attempt\n")
	fmt.Fprintf(f, "# TYPE savesync_auto_backup_result gauge\n")
	fmt.Fprintf(f, "savesync_auto_backup_result{result=%q,reason=%q,mode=%q} 1\n", m.Result, m.Reason, m.Mode)

	fmt.Fprintf(f, "# HELP savesync_info Static information about this SaveSync instance\n")
	fmt.Fprintf(f, "# TYPE savesync_info gauge\n")
	fmt.Fprintf(f, "savesync_info{hostname=%q,version=%q,title=%q,run_id=%q} 1\n", m.Hostname, m.Version, m.Title, m.RunID)

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync metrics file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename metrics file to %s: %w", finalPath, err)
	}

	if pe.logger != nil {
		pe.logger.Debug("Prometheus metrics exported to %s", finalPath)
	}

	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
