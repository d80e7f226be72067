package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/parasfix/betsol/internal/domain"
)

// BlobWriter is the narrow upload interface the archiver needs. *Writer
// satisfies it; tests substitute an in-memory fake.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// archivedMatch is one JSONL record: a settled match together with every
// wager placed on it, so the export is self-contained.
type archivedMatch struct {
	Match  domain.Match   `json:"match"`
	Wagers []domain.Wager `json:"wagers"`
}

// Archiver exports settled matches and their wagers to S3 as monthly JSONL
// files. Deletion of the archived rows from Postgres is intentionally NOT
// performed here; that is a separate, explicit step after the archive has
// been verified.
type Archiver struct {
	writer  BlobWriter
	matches domain.MatchStore
	wagers  domain.WagerStore
	audit   domain.AuditStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer BlobWriter, matches domain.MatchStore, wagers domain.WagerStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:  writer,
		matches: matches,
		wagers:  wagers,
		audit:   audit,
	}
}

// ArchiveSettled queries matches completed strictly before the cutoff,
// serializes each with its wagers to JSONL, and uploads the file to
// archive/matches/YYYY-MM.jsonl. The archival event is recorded in the audit
// log and the count of archived matches is returned.
func (a *Archiver) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	matches, err := a.matches.ListCompletedBefore(ctx, before, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled query: %w", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	records := make([]archivedMatch, 0, len(matches))
	for _, m := range matches {
		wagers, err := a.wagers.ListByMatch(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settled wagers for match %d: %w", m.ID, err)
		}
		records = append(records, archivedMatch{Match: m, Wagers: wagers})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled marshal: %w", err)
	}

	path := archivePath("matches", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settled upload: %w", err)
	}

	count := int64(len(matches))

	if err := a.audit.Log(ctx, "archive.matches", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive settled audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/matches/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
