package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// LogManager handles log file rotation and management
type LogManager struct {
	config     *LogConfig
	currentLog *os.File
}

// NewLogManager creates a new log manager
func NewLogManager(cfg *LogConfig) *LogManager {
	return &LogManager{
		config: cfg,
	}
}

// GetWriter returns the log file, rotating it first when it outgrew MaxSize
func (lm *LogManager) GetWriter() (io.Writer, error) {
	if lm.config.FilePath == "" {
		return nil, errors.New(ErrLogFilePathRequired, "no log file path specified", nil)
	}

	logDir := filepath.Dir(lm.config.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, errors.New(ErrLogDirectoryCreationFailed, "failed to create log directory", err).AddContext("dir", logDir)
	}

	if err := lm.checkRotation(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(lm.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.New(ErrLogFileOpenFailed, "failed to open log file", err).AddContext("path", lm.config.FilePath)
	}

	lm.currentLog = file
	return file, nil
}

func (lm *LogManager) checkRotation() error {
	if lm.config.MaxSize <= 0 {
		return nil
	}

	info, err := os.Stat(lm.config.FilePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(ErrLogFileStatFailed, "failed to stat log file", err)
	}

	maxSizeBytes := int64(lm.config.MaxSize) * 1024 * 1024
	if info.Size() < maxSizeBytes {
		return nil
	}

	return lm.rotateLog()
}

func (lm *LogManager) rotateLog() error {
	if lm.currentLog != nil {
		lm.currentLog.Close()
		lm.currentLog = nil
	}

	timestamp := time.Now().Format("2006-01-02-15-04-05")
	backupPath := fmt.Sprintf("%s.%s", lm.config.FilePath, timestamp)

	if err := os.Rename(lm.config.FilePath, backupPath); err != nil {
		return errors.New(ErrLogRotationFailed, "failed to rotate log file", err)
	}

	if err := lm.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to cleanup old log backups: %v\n", err)
	}

	return nil
}

type backupInfo struct {
	path    string
	modTime time.Time
}

// cleanupOldBackups removes backups beyond MaxBackups or older than MaxAge days
func (lm *LogManager) cleanupOldBackups() error {
	if lm.config.MaxBackups <= 0 && lm.config.MaxAge <= 0 {
		return nil
	}

	logDir := filepath.Dir(lm.config.FilePath)
	logBase := filepath.Base(lm.config.FilePath)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return errors.New(ErrLogBackupReadFailed, "failed to read log directory", err)
	}

	var backups []backupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), logBase+".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupInfo{
			path:    filepath.Join(logDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	// oldest first
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.Before(backups[j].modTime)
	})

	cutoff := time.Now().AddDate(0, 0, -lm.config.MaxAge)
	for i, b := range backups {
		tooMany := lm.config.MaxBackups > 0 && len(backups)-i > lm.config.MaxBackups
		tooOld := lm.config.MaxAge > 0 && b.modTime.Before(cutoff)
		if !tooMany && !tooOld {
			continue
		}
		if err := os.Remove(b.path); err != nil {
			return errors.New(ErrLogBackupRemoveFailed, "failed to remove old backup", err).AddContext("backup_path", b.path)
		}
	}

	return nil
}

// Close closes the log manager and any open files
func (lm *LogManager) Close() error {
	if lm.currentLog != nil {
		return lm.currentLog.Close()
	}
	return nil
}

// SetupLogger creates the root zerolog logger. The returned closer releases
// the log file, if any.
func SetupLogger(cfg *LogConfig, stdout io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, consoleWriter(cfg.Format, stdout))
	}

	logManager := NewLogManager(cfg)
	if cfg.FilePath != "" {
		fileWriter, err := logManager.GetWriter()
		if err != nil {
			return zerolog.Logger{}, nil, errors.New(ErrLogFileWriterSetupFailed, "failed to setup file writer", err)
		}
		writers = append(writers, fileWriter)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("component", "backfill").
		Logger()

	return logger, logManager, nil
}

// consoleWriter picks a human writer for terminals and JSON otherwise
func consoleWriter(format string, stdout io.Writer) io.Writer {
	pretty := false
	switch strings.ToLower(format) {
	case "console":
		pretty = true
	case "json":
		pretty = false
	default:
		if f, ok := stdout.(*os.File); ok {
			pretty = term.IsTerminal(int(f.Fd()))
		}
	}

	if !pretty {
		return stdout
	}
	return zerolog.ConsoleWriter{
		Out:        stdout,
		TimeFormat: time.RFC3339,
	}
}
