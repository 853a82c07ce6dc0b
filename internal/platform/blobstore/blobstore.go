// Package blobstore stores generated and uploaded documents (consent PDFs,
// signed scans, spreadsheet exports). Content lives in PostgreSQL; an
// in-memory store backs tests and development.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/db"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrInvalidCategory    = errors.New("category is not allowed")
)

// MaxFileSize is the maximum allowed blob size in bytes (20 MB).
const MaxFileSize = 20 * 1024 * 1024

const (
	CategoryConsentForm = "consent-form"
	CategoryConsentScan = "consent-scan"
	CategoryReport      = "report"
	CategoryExport      = "export"
)

var AllowedCategories = map[string]bool{
	CategoryConsentForm: true,
	CategoryConsentScan: true,
	CategoryReport:      true,
	CategoryExport:      true,
}

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var AllowedContentTypes = map[string]bool{
	ContentTypePDF:  true,
	ContentTypeXLSX: true,
	"image/png":     true,
	"image/jpeg":    true,
	"text/plain":    true,
}

// Metadata describes a stored blob.
type Metadata struct {
	ID          uuid.UUID  `json:"id"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	Category    string     `json:"category"`
	Hash        string     `json:"hash"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Store is implemented by the blob backends.
type Store interface {
	Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Metadata, error)
	GetMetadata(ctx context.Context, id uuid.UUID) (*Metadata, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// prepare validates meta, reads the content and fills the derived fields.
func prepare(meta Metadata, content io.Reader) (Metadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return meta, nil, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}
	if !AllowedCategories[meta.Category] {
		return meta, nil, fmt.Errorf("%w: %s", ErrInvalidCategory, meta.Category)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	meta.ID = uuid.New()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
	return meta, data, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu    sync.RWMutex
	blobs map[uuid.UUID]*storedBlob
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[uuid.UUID]*storedBlob)}
}

func (s *Memory) Upload(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *Memory) Download(_ context.Context, id uuid.UUID) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *Memory) GetMetadata(_ context.Context, id uuid.UUID) (*Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

func (s *Memory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// ---------------------------------------------------------------------------
// PostgreSQL implementation
// ---------------------------------------------------------------------------

type pgStore struct{ pool *pgxpool.Pool }

// NewPG stores blobs in the blob table.
func NewPG(pool *pgxpool.Pool) Store { return &pgStore{pool: pool} }

func (s *pgStore) conn(ctx context.Context) db.Querier { return db.Conn(ctx, s.pool) }

const metaCols = `id, file_name, content_type, size, patient_id, category, hash, created_by, created_at`

func scanMeta(row pgx.Row, extra ...interface{}) (*Metadata, error) {
	var m Metadata
	dest := append([]interface{}{&m.ID, &m.FileName, &m.ContentType, &m.Size, &m.PatientID,
		&m.Category, &m.Hash, &m.CreatedBy, &m.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *pgStore) Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO blob (id, file_name, content_type, size, patient_id, category, hash, created_by, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		meta.ID, meta.FileName, meta.ContentType, meta.Size, meta.PatientID, meta.Category,
		meta.Hash, meta.CreatedBy, data).Scan(&meta.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	return &meta, nil
}

func (s *pgStore) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Metadata, error) {
	var data []byte
	meta, err := scanMeta(s.conn(ctx).QueryRow(ctx,
		`SELECT `+metaCols+`, content FROM blob WHERE id = $1`, id), &data)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

func (s *pgStore) GetMetadata(ctx context.Context, id uuid.UUID) (*Metadata, error) {
	return scanMeta(s.conn(ctx).QueryRow(ctx, `SELECT `+metaCols+` FROM blob WHERE id = $1`, id))
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM blob WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}
