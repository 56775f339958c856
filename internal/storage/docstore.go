// Package storage holds the narrow adapter interfaces the pipeline depends
// on: object store, queue broker, and the relational store. Each has a real
// backend and an in-memory twin for tests and local runs.
package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DocStore is the object store for document bytes, OCR text, exports, and
// remittance statements. Paths are deterministic (see the path helpers).
type DocStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (uri string, err error)
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// ============================================================================
// DETERMINISTIC PATHS
// ============================================================================

// DocumentPath locates original document bytes.
func DocumentPath(tenantID, loanID, docID string) string {
	return fmt.Sprintf("tenants/%s/loans/%s/documents/%s", tenantID, loanID, docID)
}

// TextPath locates reflowed OCR text for a document.
func TextPath(tenantID, loanID, docID string) string {
	return fmt.Sprintf("tenants/%s/loans/%s/documents/text/%s.txt", tenantID, loanID, docID)
}

// ExportPath locates a generated export file. template is fannie, freddie or
// custom; ext is xml or csv.
func ExportPath(tenantID, loanID, template, ext string) string {
	return fmt.Sprintf("tenants/%s/loans/%s/exports/%s_%s.%s",
		tenantID, loanID, strings.ToUpper(template), loanID, ext)
}

// RemittanceCSVPath locates a remittance loan-activity statement.
func RemittanceCSVPath(tenantID, investorID, periodStart, periodEnd string) string {
	return fmt.Sprintf("tenants/%s/remittances/%s_%s_%s_loan_activity.csv",
		tenantID, investorID, periodStart, periodEnd)
}

// ============================================================================
// IN-MEMORY DOC STORE
// ============================================================================

// MemDocStore keeps objects in a map. Tests and local development only.
type MemDocStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemDocStore() *MemDocStore {
	return &MemDocStore{objects: make(map[string][]byte)}
}

func (s *MemDocStore) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[path] = cp
	return "mem://" + path, nil
}

func (s *MemDocStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemDocStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[path]
	return ok, nil
}

var _ DocStore = (*MemDocStore)(nil)

// ============================================================================
// FILESYSTEM DOC STORE
// ============================================================================

// FSDocStore persists objects under a root directory, one file per path.
// Writes go through a temp file and rename so readers never see a partial
// object.
type FSDocStore struct {
	root   string
	logger *log.Logger
}

func NewFSDocStore(root string) (*FSDocStore, error) {
	if root == "" {
		return nil, fmt.Errorf("docstore root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create docstore root %s: %w", root, err)
	}
	s := &FSDocStore{
		root:   root,
		logger: log.New(log.Writer(), "[DOCSTORE] ", log.LstdFlags),
	}
	s.logger.Printf("✅ Object store root: %s", root)
	return s, nil
}

func (s *FSDocStore) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return "", fmt.Errorf("stage object %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close object %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit object %s: %w", path, err)
	}
	return "file://" + full, nil
}

func (s *FSDocStore) Get(_ context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	return data, nil
}

func (s *FSDocStore) Exists(_ context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object %s: %w", path, err)
	}
	return true, nil
}

// resolve rejects paths that would escape the root.
func (s *FSDocStore) resolve(path string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path: %s", path)
	}
	return full, nil
}

var _ DocStore = (*FSDocStore)(nil)

// ============================================================================
// OCR TEXT LOADER
// ============================================================================

// TextLoader adapts a DocStore to the extractor's text-loading interface.
type TextLoader struct {
	Store DocStore
}

func (l TextLoader) LoadText(ctx context.Context, tenantID, loanID, docID string) (string, error) {
	data, err := l.Store.Get(ctx, TextPath(tenantID, loanID, docID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
