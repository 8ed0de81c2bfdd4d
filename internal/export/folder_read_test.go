package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"ytexport/internal/youtrack"
)

// newProjectFolder places the project under root using its slug alone.
func newProjectFolder(root string, project youtrack.Project) ProjectFolder {
	return ProjectFolder{Dir: filepath.Join(root, ProjectSlug(project))}
}

func (f ProjectFolder) readBatch(n int) ([]json.RawMessage, error) {
	data, err := os.ReadFile(f.BatchPath(n))
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse batch %d: %w", n, err)
	}
	return items, nil
}

// batches lists the batch numbers on disk in ascending order.
func (f ProjectFolder) batches() ([]int, error) {
	entries, err := os.ReadDir(f.IssuesDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, batchPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, batchPrefix), ".json"))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func (f ProjectFolder) readMetadata() (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(f.MetadataPath())
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse metadata: %w", err)
	}
	return meta, nil
}
