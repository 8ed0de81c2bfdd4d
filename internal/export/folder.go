package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"ytexport/internal/youtrack"
)

const (
	issuesDirName      = "issues"
	attachmentsDirName = "attachments"
	metadataFileName   = "metadata.json"
	batchPrefix        = "issues_batch_"

	// MaxAttachmentBase caps the attachment base name, in runes.
	MaxAttachmentBase = 100
)

// ProjectFolder is the on-disk namespace of one project under the export root.
type ProjectFolder struct {
	Dir string
}

func (f ProjectFolder) IssuesDir() string      { return filepath.Join(f.Dir, issuesDirName) }
func (f ProjectFolder) AttachmentsDir() string { return filepath.Join(f.Dir, attachmentsDirName) }
func (f ProjectFolder) MetadataPath() string   { return filepath.Join(f.Dir, metadataFileName) }

// BatchPath is the file holding batch n (numbered from 1).
func (f ProjectFolder) BatchPath(n int) string {
	return filepath.Join(f.IssuesDir(), fmt.Sprintf("%s%d.json", batchPrefix, n))
}

// ResetIssues deletes and recreates the issues directory so a run never
// mixes its batches with a previous run's. Attachments are left alone.
func (f ProjectFolder) ResetIssues() error {
	if err := os.RemoveAll(f.IssuesDir()); err != nil {
		return fmt.Errorf("remove issues folder: %w", err)
	}
	//nolint:gosec // G301: export output is meant to be readable
	if err := os.MkdirAll(f.IssuesDir(), 0755); err != nil {
		return fmt.Errorf("create issues folder: %w", err)
	}
	return nil
}

// ClearStale removes the batches and metadata a previous run left behind,
// without creating anything. Attachments are left alone.
func (f ProjectFolder) ClearStale() error {
	if err := os.RemoveAll(f.IssuesDir()); err != nil {
		return fmt.Errorf("remove issues folder: %w", err)
	}
	if err := os.Remove(f.MetadataPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove metadata: %w", err)
	}
	return nil
}

// AppendIssue adds the issue to batch n. The whole array is read, extended
// and rewritten through a temp file, so the batch is always valid JSON.
func (f ProjectFolder) AppendIssue(n int, issue youtrack.Issue) error {
	path := f.BatchPath(n)
	items, err := readArray(path)
	if err != nil {
		return err
	}
	raw, err := issue.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode issue %s: %w", issue.Key(), err)
	}
	items = append(items, raw)

	data, err := encodeIndented(items)
	if err != nil {
		return fmt.Errorf("encode batch %d: %w", n, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write batch %d: %w", n, err)
	}
	return nil
}

// SaveAttachment writes data under attachments/<issueKey>/ and returns the path.
func (f ProjectFolder) SaveAttachment(issueKey string, att youtrack.Attachment, data []byte) (string, error) {
	key := sanitizeName(issueKey)
	if key == "" {
		key = "unknown"
	}
	dir := filepath.Join(f.AttachmentsDir(), key)
	//nolint:gosec // G301: export output is meant to be readable
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create attachments folder: %w", err)
	}
	path := filepath.Join(dir, AttachmentFileName(att))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write attachment %s: %w", att.Name, err)
	}
	return path, nil
}

// WriteMetadata replaces metadata.json.
func (f ProjectFolder) WriteMetadata(meta Metadata) error {
	data, err := encodeIndented(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeFileAtomic(f.MetadataPath(), data); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// AttachmentFileName is "<id>_<base><ext>" with the base cut to
// MaxAttachmentBase runes and path separators or control characters replaced.
func AttachmentFileName(att youtrack.Attachment) string {
	name := sanitizeName(att.Name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if r := []rune(base); len(r) > MaxAttachmentBase {
		base = string(r[:MaxAttachmentBase])
	}
	return sanitizeName(att.ID) + "_" + base + ext
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}

// readArray loads a JSON array file. A missing, empty or unparseable file
// starts a new array.
func readArray(path string) ([]json.RawMessage, error) {
	//nolint:gosec // G304: path is built from the export root
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var items []json.RawMessage
	if len(bytes.TrimSpace(data)) == 0 || json.Unmarshal(data, &items) != nil {
		return nil, nil
	}
	return items, nil
}

func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	//nolint:gosec // G301: export output is meant to be readable
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	//nolint:gosec // G302: export output is meant to be readable
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
