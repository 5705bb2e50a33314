package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/afroash/station-monitor/internal/codec"
	"github.com/afroash/station-monitor/internal/models"
)

// readChunkSize is how many bytes the backward reader pulls per ReadAt.
const readChunkSize = 64 * 1024

// ErrLineBreak is returned by Append for lines containing \r or \n.
var ErrLineBreak = errors.New("line must not contain a line break")

// Store is the append-only reading log used by the server
type Store interface {
	Append(line string) error
	AppendSample(sample *models.Sample) (string, error)
	ReadLast(limit int) []models.Reading
	Stat() (StoreStats, error)
}

// Compile-time interface check
var _ Store = (*LogStore)(nil)

// LogStore keeps one reading per line in a plain text file. Lines are only
// ever appended; nothing is rewritten or truncated.
type LogStore struct {
	path   string
	codec  *codec.Codec
	logger zerolog.Logger

	mu sync.Mutex

	// Stats
	statsMu      sync.RWMutex
	totalAppends int64
	totalErrors  int64
	lastAppend   time.Time
	fallbacks    int64
}

// StoreStats describes the log file and the writer's counters
type StoreStats struct {
	Path          string    `json:"path"`
	SizeBytes     int64     `json:"size_bytes"`
	ModTime       time.Time `json:"mod_time,omitempty"`
	TotalAppends  int64     `json:"total_appends"`
	TotalErrors   int64     `json:"total_errors"`
	LastAppend    time.Time `json:"last_append,omitempty"`
	FallbackReads int64     `json:"fallback_reads"`
}

// NewLogStore creates a store backed by path. The parent directory is
// created if needed; the file itself appears on the first append.
func NewLogStore(path string, c *codec.Codec, logger zerolog.Logger) (*LogStore, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if c == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	logger.Info().Str("path", path).Msg("Log store initialized")

	return &LogStore{
		path:   path,
		codec:  c,
		logger: logger,
	}, nil
}

// Path returns the log file path
func (s *LogStore) Path() string {
	return s.path
}

// Codec returns the codec used to encode and decode lines
func (s *LogStore) Codec() *codec.Codec {
	return s.codec
}

// Append writes line plus a newline as a single write under an exclusive
// lock, then syncs. Concurrent writers in this or other processes never
// interleave.
func (s *LogStore) Append(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		s.statsMu.Lock()
		s.totalErrors++
		s.statsMu.Unlock()
		return ErrLineBreak
	}

	err := s.append(line)

	s.statsMu.Lock()
	if err != nil {
		s.totalErrors++
	} else {
		s.totalAppends++
		s.lastAppend = time.Now()
	}
	s.statsMu.Unlock()

	return err
}

func (s *LogStore) append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock log: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	if _, err := f.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log: %w", err)
	}
	return nil
}

// AppendSample encodes sample and appends it. The written line is returned.
func (s *LogStore) AppendSample(sample *models.Sample) (string, error) {
	line, err := s.codec.Encode(sample)
	if err != nil {
		return "", err
	}
	if err := s.Append(line); err != nil {
		return "", err
	}
	return line, nil
}

// ReadLast returns up to limit of the most recent decodable readings,
// newest first. Bytes after the last newline belong to an append still in
// progress and are ignored. A missing or unreadable log yields no readings.
func (s *LogStore) ReadLast(limit int) []models.Reading {
	if limit <= 0 {
		return []models.Reading{}
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug().Str("path", s.path).Msg("Log file does not exist yet")
		} else {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to open log")
		}
		return []models.Reading{}
	}
	defer f.Close()

	info, err := f.Stat()
	if err == nil && info.Mode().IsRegular() {
		readings, err := s.readBackward(f, info.Size(), limit)
		if err == nil {
			return readings
		}
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Backward read failed, scanning whole log")
	}

	s.statsMu.Lock()
	s.fallbacks++
	s.statsMu.Unlock()

	return s.readFull(limit)
}

// readBackward walks the file from the end in fixed chunks. carry holds the
// bytes of a line whose start has not been read yet.
func (s *LogStore) readBackward(r io.ReaderAt, size int64, limit int) ([]models.Reading, error) {
	readings := make([]models.Reading, 0, min(limit, 256))
	if size == 0 {
		return readings, nil
	}

	var carry []byte
	trimmed := false
	pos := size
	buf := make([]byte, readChunkSize)

	for pos > 0 {
		n := int64(readChunkSize)
		if pos < n {
			n = pos
		}
		pos -= n

		chunk := buf[:n]
		if _, err := r.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		data := make([]byte, 0, len(chunk)+len(carry))
		data = append(data, chunk...)
		data = append(data, carry...)

		if !trimmed {
			i := bytes.LastIndexByte(data, '\n')
			if i < 0 {
				if pos == 0 {
					// No complete line anywhere in the file
					return readings, nil
				}
				carry = data
				continue
			}
			data = data[:i]
			trimmed = true
		}

		for {
			i := bytes.LastIndexByte(data, '\n')
			if i < 0 {
				break
			}
			if s.collect(&readings, data[i+1:]) >= limit {
				return readings, nil
			}
			data = data[:i]
		}
		carry = data
	}

	if trimmed {
		s.collect(&readings, carry)
	}
	return readings, nil
}

// readFull reads the whole file and walks its complete lines newest first.
func (s *LogStore) readFull(limit int) []models.Reading {
	readings := []models.Reading{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read log")
		return readings
	}

	lines := strings.Split(string(data), "\n")
	// The last element is either empty or an incomplete line
	lines = lines[:len(lines)-1]

	for i := len(lines) - 1; i >= 0; i-- {
		if s.collect(&readings, []byte(lines[i])) >= limit {
			break
		}
	}
	return readings
}

// collect decodes line and appends it when valid. It returns the new count.
func (s *LogStore) collect(readings *[]models.Reading, line []byte) int {
	if r := s.codec.Decode(string(line)); r != nil {
		*readings = append(*readings, *r)
	}
	return len(*readings)
}

// Stat reports file metadata and append counters. A missing file reports
// zero size without error.
func (s *LogStore) Stat() (StoreStats, error) {
	s.statsMu.RLock()
	stats := StoreStats{
		Path:          s.path,
		TotalAppends:  s.totalAppends,
		TotalErrors:   s.totalErrors,
		LastAppend:    s.lastAppend,
		FallbackReads: s.fallbacks,
	}
	s.statsMu.RUnlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to stat log: %w", err)
	}
	stats.SizeBytes = info.Size()
	stats.ModTime = info.ModTime()
	return stats, nil
}
