package export

import (
	"fmt"
	"strings"

	apperrors "ytexport/internal/errors"
	"ytexport/internal/youtrack"
)

// ParseProject decodes a "<name> | ID:<id>" label. A label without the
// delimiter or with an empty ID is malformed input.
func ParseProject(raw string) (youtrack.Project, error) {
	name, id, ok := strings.Cut(raw, youtrack.LabelDelimiter)
	if !ok {
		return youtrack.Project{}, apperrors.New(apperrors.CodeMalformedInput,
			fmt.Sprintf("malformed project %q: missing %q", raw, youtrack.LabelDelimiter), nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return youtrack.Project{}, apperrors.New(apperrors.CodeMalformedInput,
			fmt.Sprintf("malformed project %q: empty id", raw), nil)
	}
	return youtrack.Project{ID: id, Name: strings.TrimSpace(name)}, nil
}

// ParseProjects parses every label, failing on the first malformed one.
// Repeated IDs are dropped so two pipelines never share a folder.
func ParseProjects(raw []string) ([]youtrack.Project, error) {
	seen := make(map[string]struct{}, len(raw))
	projects := make([]youtrack.Project, 0, len(raw))
	for _, label := range raw {
		project, err := ParseProject(label)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[project.ID]; dup {
			continue
		}
		seen[project.ID] = struct{}{}
		projects = append(projects, project)
	}
	return projects, nil
}
