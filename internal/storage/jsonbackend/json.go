package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/FranksOps/critic/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates an NDJSON-backed storage.Backend, one FetchRecord per line.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}
	return &jsonBackend{file: f}, nil
}

type record struct {
	ID          string              `json:"id"`
	URL         string              `json:"url"`
	Company     string              `json:"company"`
	Source      string              `json:"source"`
	Page        int                 `json:"page"`
	Attempt     int                 `json:"attempt"`
	Rendered    bool                `json:"rendered"`
	StatusCode  int                 `json:"status_code"`
	Status      string              `json:"status"`
	BlockVendor string              `json:"block_vendor,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
	CreatedAt   string              `json:"created_at"`
	Error       string              `json:"error,omitempty"`
}

func toWire(r *storage.FetchRecord) record {
	return record{
		ID:          r.ID,
		URL:         r.URL,
		Company:     r.Company,
		Source:      r.Source,
		Page:        r.Page,
		Attempt:     r.Attempt,
		Rendered:    r.Rendered,
		StatusCode:  r.StatusCode,
		Status:      r.Status,
		BlockVendor: r.BlockVendor,
		Headers:     r.Headers,
		Body:        r.Body,
		DurationMs:  r.Duration.Milliseconds(),
		CreatedAt:   r.CreatedAt.Format(timeLayout),
		Error:       r.Error,
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func fromWire(w record) (*storage.FetchRecord, error) {
	created, err := timeParse(w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &storage.FetchRecord{
		ID:          w.ID,
		URL:         w.URL,
		Company:     w.Company,
		Source:      w.Source,
		Page:        w.Page,
		Attempt:     w.Attempt,
		Rendered:    w.Rendered,
		StatusCode:  w.StatusCode,
		Status:      w.Status,
		BlockVendor: w.BlockVendor,
		Headers:     w.Headers,
		Body:        w.Body,
		Duration:    msToDuration(w.DurationMs),
		CreatedAt:   created,
		Error:       w.Error,
	}, nil
}

func timeParse(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at: %w", err)
	}
	return t, nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (b *jsonBackend) Save(ctx context.Context, rec *storage.FetchRecord) error {
	data, err := json.Marshal(toWire(rec))
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek archive: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var matched []*storage.FetchRecord
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var w record
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		r, err := fromWire(w)
		if err != nil {
			return nil, err
		}

		if filter.URL != "" && r.URL != filter.URL {
			continue
		}
		if filter.Company != "" && r.Company != filter.Company {
			continue
		}
		if filter.Source != "" && r.Source != filter.Source {
			continue
		}
		if filter.Blocked != nil && (r.Status == "blocked") != *filter.Blocked {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}

		matched = append(matched, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}

	// newest first
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*storage.FetchRecord{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
