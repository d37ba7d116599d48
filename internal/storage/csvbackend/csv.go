package csvbackend

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/critic/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// columns defines the CSV column order.
var columns = []string{
	"id",
	"url",
	"company",
	"source",
	"page",
	"attempt",
	"rendered",
	"status_code",
	"status",
	"block_vendor",
	"headers_json",
	"body_base64",
	"duration_ms",
	"created_at",
	"error",
}

const timeLayout = time.RFC3339Nano

// New creates a CSV-backed storage.Backend. The header row is written when
// the file is empty.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive file: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Save(ctx context.Context, rec *storage.FetchRecord) error {
	headersJSON, err := json.Marshal(rec.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	row := []string{
		rec.ID,
		rec.URL,
		rec.Company,
		rec.Source,
		strconv.Itoa(rec.Page),
		strconv.Itoa(rec.Attempt),
		strconv.FormatBool(rec.Rendered),
		strconv.Itoa(rec.StatusCode),
		rec.Status,
		rec.BlockVendor,
		string(headersJSON),
		base64.StdEncoding.EncodeToString(rec.Body),
		strconv.FormatInt(rec.Duration.Milliseconds(), 10),
		rec.CreatedAt.Format(timeLayout),
		rec.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek archive: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	var matched []*storage.FetchRecord
	for i, row := range rows {
		if i == 0 || len(row) != len(columns) {
			continue // header or malformed
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, err
		}

		if filter.URL != "" && rec.URL != filter.URL {
			continue
		}
		if filter.Company != "" && rec.Company != filter.Company {
			continue
		}
		if filter.Source != "" && rec.Source != filter.Source {
			continue
		}
		if filter.Blocked != nil && (rec.Status == "blocked") != *filter.Blocked {
			continue
		}
		if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
			continue
		}

		matched = append(matched, rec)
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

func parseRow(row []string) (*storage.FetchRecord, error) {
	page, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	attempt, err := strconv.Atoi(row[5])
	if err != nil {
		return nil, fmt.Errorf("parse attempt: %w", err)
	}
	rendered, err := strconv.ParseBool(row[6])
	if err != nil {
		return nil, fmt.Errorf("parse rendered: %w", err)
	}
	statusCode, err := strconv.Atoi(row[7])
	if err != nil {
		return nil, fmt.Errorf("parse status_code: %w", err)
	}

	var headers map[string][]string
	if row[10] != "" {
		if err := json.Unmarshal([]byte(row[10]), &headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}

	body, err := base64.StdEncoding.DecodeString(row[11])
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	durationMs, err := strconv.ParseInt(row[12], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse duration_ms: %w", err)
	}

	created, err := time.Parse(timeLayout, row[13])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &storage.FetchRecord{
		ID:          row[0],
		URL:         row[1],
		Company:     row[2],
		Source:      row[3],
		Page:        page,
		Attempt:     attempt,
		Rendered:    rendered,
		StatusCode:  statusCode,
		Status:      row[8],
		BlockVendor: row[9],
		Headers:     headers,
		Body:        body,
		Duration:    time.Duration(durationMs) * time.Millisecond,
		CreatedAt:   created,
		Error:       row[14],
	}, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
