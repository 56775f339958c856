package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/loanserve/backend/internal/audit"
	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/storage"
	"github.com/loanserve/backend/internal/webhooks"
)

// Store is the persistence surface the engine needs.
type Store interface {
	CreateExport(ctx context.Context, tenantID, loanID, template, mapperVersion string) (*core.ExportRecord, error)
	MarkExportRunning(ctx context.Context, exportID string) error
	MarkExportSucceeded(ctx context.Context, exportID, fileURI, fileSHA string) error
	MarkExportFailed(ctx context.Context, exportID string, errs []string) error
	LoadDatapoints(ctx context.Context, tenantID, loanID string) (map[string]core.Datapoint, error)
}

// Artifact is the produced delivery file.
type Artifact struct {
	Bytes    []byte `json:"-"`
	SHA256   string `json:"sha256"`
	MIME     string `json:"mime"`
	Filename string `json:"filename"`
	URI      string `json:"uri"`
}

// Engine runs one export per (loan, template) invocation.
type Engine struct {
	store   Store
	docs    storage.DocStore
	mapper  *Mapper
	emitter webhooks.Emitter
	sink    *audit.Sink
	logger  *log.Logger
}

func NewEngine(store Store, docs storage.DocStore, mapper *Mapper, emitter webhooks.Emitter, sink *audit.Sink) *Engine {
	return &Engine{
		store:   store,
		docs:    docs,
		mapper:  mapper,
		emitter: emitter,
		sink:    sink,
		logger:  log.New(log.Writer(), "[EXPORT] ", log.LstdFlags),
	}
}

// Run produces the delivery file for one loan and template. Missing required
// keys or a bad mapper mark the export failed; those failures are
// deterministic and must not be retried.
func (e *Engine) Run(ctx context.Context, tenantID, loanID, template string) (*core.ExportRecord, *Artifact, error) {
	rec, err := e.store.CreateExport(ctx, tenantID, loanID, template, e.mapper.Version())
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.MarkExportRunning(ctx, rec.ID); err != nil {
		return nil, nil, err
	}

	artifact, exportErr := e.produce(ctx, tenantID, loanID, template)
	if exportErr != nil {
		errs := []string{exportErr.Error()}
		if err := e.store.MarkExportFailed(ctx, rec.ID, errs); err != nil {
			e.logger.Printf("❌ Failed to mark export %s failed: %v", rec.ID, err)
		}
		rec.Status = core.ExportFailed
		rec.Errors = errs
		e.audit(ctx, tenantID, "EXPORT.FAILED", rec.ID, map[string]any{"template": template, "errors": errs})
		return rec, nil, core.Validation(exportErr)
	}

	if err := e.store.MarkExportSucceeded(ctx, rec.ID, artifact.URI, artifact.SHA256); err != nil {
		return nil, nil, err
	}
	rec.Status = core.ExportSucceeded
	rec.FileURI = artifact.URI
	rec.FileSHA256 = artifact.SHA256

	e.audit(ctx, tenantID, "EXPORT.COMPLETED", rec.ID, map[string]any{
		"template": template,
		"file_uri": artifact.URI,
		"sha256":   artifact.SHA256,
	})
	if e.emitter != nil {
		e.emitter.Emit(webhooks.EventExportCompleted, tenantID, map[string]any{
			"export_id": rec.ID,
			"template":  template,
			"file_uri":  artifact.URI,
			"sha256":    artifact.SHA256,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
	e.logger.Printf("✅ Export %s (%s) → %s", rec.ID, template, artifact.Filename)
	return rec, artifact, nil
}

func (e *Engine) produce(ctx context.Context, tenantID, loanID, template string) (*Artifact, error) {
	t, err := e.mapper.Load(template)
	if err != nil {
		return nil, err
	}

	points, err := e.store.LoadDatapoints(ctx, tenantID, loanID)
	if err != nil {
		return nil, err
	}

	if missing := missingRequired(t, points); len(missing) > 0 {
		return nil, fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}

	var data []byte
	var ext, mime string
	switch t.Format {
	case "xml":
		data = RenderXML(t, points)
		ext, mime = "xml", "application/xml"
	case "csv":
		data = RenderCSV(t, points)
		ext, mime = "csv", "text/csv"
	}

	path := storage.ExportPath(tenantID, loanID, template, ext)
	uri, err := e.docs.Put(ctx, path, data, mime)
	if err != nil {
		return nil, fmt.Errorf("store export file: %w", err)
	}

	sum := sha256.Sum256(data)
	return &Artifact{
		Bytes:    data,
		SHA256:   hex.EncodeToString(sum[:]),
		MIME:     mime,
		Filename: fmt.Sprintf("%s_%s.%s", strings.ToUpper(template), loanID, ext),
		URI:      uri,
	}, nil
}

func missingRequired(t *Template, points map[string]core.Datapoint) []string {
	var missing []string
	for _, key := range t.Required {
		dp, ok := points[key]
		if !ok || strings.TrimSpace(dp.Value) == "" {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func (e *Engine) audit(ctx context.Context, tenantID, eventType, exportID string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(ctx, tenantID, eventType, "system", "export-engine",
		fmt.Sprintf("urn:export:%s", exportID), payload)
}
