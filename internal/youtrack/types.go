package youtrack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "ytexport/internal/errors"
)

// User is the authenticated account behind the bearer token.
type User struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DisplayName prefers the full name, falling back to the login.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Login
}

// Project is a YouTrack project as returned by the admin projects endpoint.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ShortName   string `json:"shortName,omitempty"`
	Description string `json:"description,omitempty"`
	Archived    bool   `json:"archived"`
}

// LabelDelimiter separates name and ID in a project label.
const LabelDelimiter = "| ID:"

// Label encodes the project as "<name> | ID:<id>".
func (p Project) Label() string {
	return fmt.Sprintf("%s %s%s", p.Name, LabelDelimiter, p.ID)
}

// Attachment describes a file attached to an issue. URL may be relative to
// the instance root.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Created  int64  `json:"created,omitempty"`
	Author   *User  `json:"author,omitempty"`
}

// Issue is an opaque issue payload. Only the fields the exporter needs are
// decoded; Raw keeps the original bytes so output is pass-through.
type Issue struct {
	ID          string
	IDReadable  string
	Resolved    bool
	Attachments []Attachment
	Raw         json.RawMessage
}

// UnmarshalJSON keeps the raw payload and reads known fields leniently:
// missing or mistyped values fall back to zero values.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*i = Issue{Raw: append(json.RawMessage(nil), data...)}
	_ = json.Unmarshal(fields["id"], &i.ID)
	_ = json.Unmarshal(fields["idReadable"], &i.IDReadable)
	i.Resolved = truthy(fields["resolved"])
	if raw, ok := fields["attachments"]; ok {
		var atts []Attachment
		if err := json.Unmarshal(raw, &atts); err == nil {
			i.Attachments = atts
		}
	}
	return nil
}

// MarshalJSON emits the original payload unchanged.
func (i Issue) MarshalJSON() ([]byte, error) {
	if len(i.Raw) == 0 {
		return []byte("null"), nil
	}
	return i.Raw, nil
}

// Key returns the human-readable ID when present, else the internal ID.
func (i Issue) Key() string {
	if i.IDReadable != "" {
		return i.IDReadable
	}
	return i.ID
}

func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", "0", `""`, "[]", "{}":
		return false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return true
}

// ExportItem is one category a user can export.
type ExportItem string

const (
	UnresolvedIssues ExportItem = "unresolved"
	ResolvedIssues   ExportItem = "resolved"
	Comments         ExportItem = "comments"
	Attachments      ExportItem = "attachments"
)

// AllExportItems lists every category in menu order.
var AllExportItems = []ExportItem{UnresolvedIssues, ResolvedIssues, Comments, Attachments}

// Label is the menu text for the item.
func (e ExportItem) Label() string {
	switch e {
	case UnresolvedIssues:
		return "Unresolved Issues"
	case ResolvedIssues:
		return "Resolved Issues"
	case Comments:
		return "Comments"
	case Attachments:
		return "Attachments"
	default:
		return string(e)
	}
}

// ParseExportItem accepts the short names (unresolved, resolved, comments,
// attachments) and the menu labels, case-insensitively.
func ParseExportItem(raw string) (ExportItem, error) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	for _, item := range AllExportItems {
		if needle == string(item) || needle == strings.ToLower(item.Label()) {
			return item, nil
		}
	}
	return "", apperrors.New(apperrors.CodeMalformedInput, fmt.Sprintf("unknown export item %q", raw), nil)
}

// Selection is the set of categories chosen for an export.
type Selection struct {
	items map[ExportItem]struct{}
}

// NewSelection builds a selection from items; duplicates collapse.
func NewSelection(items ...ExportItem) Selection {
	s := Selection{items: make(map[ExportItem]struct{}, len(items))}
	for _, item := range items {
		s.items[item] = struct{}{}
	}
	return s
}

// ParseSelection parses names or labels, also splitting comma-separated values.
func ParseSelection(values []string) (Selection, error) {
	var items []ExportItem
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			item, err := ParseExportItem(part)
			if err != nil {
				return Selection{}, err
			}
			items = append(items, item)
		}
	}
	return NewSelection(items...), nil
}

// Has reports whether item was selected.
func (s Selection) Has(item ExportItem) bool {
	_, ok := s.items[item]
	return ok
}

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool {
	return len(s.items) == 0
}

// Items returns the selected categories in menu order.
func (s Selection) Items() []ExportItem {
	out := make([]ExportItem, 0, len(s.items))
	for _, item := range AllExportItems {
		if s.Has(item) {
			out = append(out, item)
		}
	}
	return out
}

// String joins the labels of the selected items.
func (s Selection) String() string {
	items := s.Items()
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label()
	}
	return strings.Join(labels, ", ")
}
