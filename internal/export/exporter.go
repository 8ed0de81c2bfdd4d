package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ytexport/internal/debug"
	apperrors "ytexport/internal/errors"
	"ytexport/internal/progress"
	"ytexport/internal/youtrack"
)

const (
	DefaultBatchSize = 100
	DefaultPageSize  = 100
)

// IssueSource serves issue pages and attachment bytes.
type IssueSource interface {
	Issues(ctx context.Context, project youtrack.Project, sel youtrack.Selection, skip, limit int) ([]youtrack.Issue, error)
	AttachmentContent(ctx context.Context, att youtrack.Attachment) ([]byte, error)
}

// ExportResult describes one finished project export.
type ExportResult struct {
	Exported int
	Counters Counters
	Metadata Metadata
	Folder   string
}

// Exporter writes one project's issues, attachments and metadata to disk.
type Exporter struct {
	source    IssueSource
	pageSize  int
	batchSize int
	now       func() time.Time
}

// NewExporter builds an exporter reading pages of pageSize issues.
func NewExporter(source IssueSource, pageSize, batchSize int) *Exporter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Exporter{source: source, pageSize: pageSize, batchSize: batchSize, now: time.Now}
}

// Export pages through the project's issues until an empty page, appending
// each to the current batch file in folder and saving attachments when
// selected. Metadata is written once, after the last page. task may be nil.
func (e *Exporter) Export(ctx context.Context, folder ProjectFolder, project youtrack.Project, sel youtrack.Selection, task *progress.Task) (ExportResult, error) {
	log := debug.With(zap.String("project", project.Name), zap.String("folder", folder.Dir))

	if err := folder.ResetIssues(); err != nil {
		return ExportResult{}, apperrors.Wrap(apperrors.CodeExport, "Failed to remove current project folder", err)
	}

	var (
		counters Counters
		parsed   int
		batch    = 1
	)
	withAttachments := sel.Has(youtrack.Attachments)

	for {
		if err := ctx.Err(); err != nil {
			return ExportResult{}, apperrors.New(apperrors.CodeCancelled, "export cancelled", err)
		}
		issues, err := e.source.Issues(ctx, project, sel, parsed, e.pageSize)
		if err != nil {
			return ExportResult{}, apperrors.Wrap(apperrors.CodeExport, "Failed to export issues", err)
		}
		if len(issues) == 0 {
			break
		}

		for _, issue := range issues {
			if issue.Resolved {
				counters.Resolved++
			} else {
				counters.Unresolved++
			}

			if err := folder.AppendIssue(batch, issue); err != nil {
				return ExportResult{}, apperrors.Wrap(apperrors.CodeExport, "Failed to write issue to batch file", err)
			}

			if withAttachments {
				saved, err := e.saveAttachments(ctx, folder, issue)
				counters.Attachments += saved
				if err != nil {
					return ExportResult{}, err
				}
			}

			parsed++
			if task != nil {
				task.Advance(1)
			}
			if parsed%e.batchSize == 0 {
				log.Debug("batch full", zap.Int("batch", batch), zap.Int("issues", parsed))
				batch++
				if task != nil {
					task.Describe(fmt.Sprintf("Writing batch %d...", batch))
				}
			}
		}
	}

	meta := NewMetadata(counters, e.now())
	if err := folder.WriteMetadata(meta); err != nil {
		return ExportResult{}, apperrors.Wrap(apperrors.CodeExport, "Failed to write metadata file", err)
	}
	log.Debug("project exported",
		zap.Int("issues", parsed),
		zap.Int("resolved", counters.Resolved),
		zap.Int("attachments", counters.Attachments))

	return ExportResult{Exported: parsed, Counters: counters, Metadata: meta, Folder: folder.Dir}, nil
}

func (e *Exporter) saveAttachments(ctx context.Context, folder ProjectFolder, issue youtrack.Issue) (int, error) {
	saved := 0
	for _, att := range issue.Attachments {
		data, err := e.source.AttachmentContent(ctx, att)
		if err == nil {
			var path string
			path, err = folder.SaveAttachment(issue.Key(), att, data)
			if err == nil {
				debug.With(zap.String("issue", issue.Key()), zap.String("path", path), zap.Int("bytes", len(data))).
					Debug("attachment saved")
				saved++
				continue
			}
		}
		return saved, apperrors.Wrap(apperrors.CodeExport,
			fmt.Sprintf("Failed to download attachment %s for issue %s", att.Name, issue.Key()), err)
	}
	return saved, nil
}
