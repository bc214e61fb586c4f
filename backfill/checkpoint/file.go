package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// FileStore keeps one indented JSON document per table in a directory
type FileStore struct {
	dir    string
	clock  *clock
	logger zerolog.Logger
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first save.
func NewFileStore(dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		dir:    dir,
		clock:  newClock(nil),
		logger: logger.With().Str("component", "checkpoint-store").Str("dir", dir).Logger(),
	}
}

// WithClock replaces the time source
func (s *FileStore) WithClock(now func() time.Time) *FileStore {
	s.clock = newClock(now)
	return s
}

func (s *FileStore) path(table string) string {
	return filepath.Join(s.dir, table+".json")
}

func (s *FileStore) Save(ctx context.Context, cp Checkpoint) error {
	cp, err := prepare(cp, s.clock)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.New(ErrCheckpointIO, "failed to create checkpoint directory", err).AddContext("dir", s.dir)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.New(ErrCheckpointIO, "failed to encode checkpoint", err).AddContext("table", cp.TableName)
	}

	tmp, err := os.CreateTemp(s.dir, "."+cp.TableName+".*.tmp")
	if err != nil {
		return errors.New(ErrCheckpointIO, "failed to create temp checkpoint", err).AddContext("table", cp.TableName)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.New(ErrCheckpointIO, "failed to write checkpoint", err).AddContext("table", cp.TableName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.New(ErrCheckpointIO, "failed to write checkpoint", err).AddContext("table", cp.TableName)
	}
	if err := os.Rename(tmpName, s.path(cp.TableName)); err != nil {
		os.Remove(tmpName)
		return errors.New(ErrCheckpointIO, "failed to replace checkpoint", err).AddContext("table", cp.TableName)
	}

	s.logger.Debug().
		Str("table", cp.TableName).
		Int64("processed", cp.ProcessedCount).
		Int64("total", cp.TotalCount).
		Msg("Checkpoint saved")
	return nil
}

func (s *FileStore) Load(ctx context.Context, table string) *Checkpoint {
	if ValidateTableName(table) != nil {
		return nil
	}
	data, err := os.ReadFile(s.path(table))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("table", table).Msg("Failed to read checkpoint")
		}
		return nil
	}
	return s.decode(table, data)
}

func (s *FileStore) decode(table string, data []byte) *Checkpoint {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn().Err(err).Str("table", table).Msg("Ignoring malformed checkpoint")
		return nil
	}
	if err := cp.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("table", table).Msg("Ignoring invalid checkpoint")
		return nil
	}
	if cp.TableName != table {
		s.logger.Warn().Str("table", table).Str("recorded", cp.TableName).Msg("Ignoring checkpoint for another table")
		return nil
	}
	return &cp
}

func (s *FileStore) Clear(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if err := os.Remove(s.path(table)); err != nil && !os.IsNotExist(err) {
		return errors.New(ErrCheckpointIO, "failed to remove checkpoint", err).AddContext("table", table)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(ErrCheckpointIO, "failed to read checkpoint directory", err).AddContext("dir", s.dir)
	}

	var out []Checkpoint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		table := strings.TrimSuffix(name, ".json")
		if cp := s.Load(ctx, table); cp != nil {
			out = append(out, *cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
