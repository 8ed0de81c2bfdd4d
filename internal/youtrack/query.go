package youtrack

import "strings"

// Field groups requested from /api/issues.
const (
	BaselineFields = "id,idReadable,summary,description,created,updated,resolved," +
		"reporter(login,name),updater(login,name),tags(name)," +
		"parent(issues(idReadable)),subtasks(issues(idReadable))," +
		"links(direction,linkType(name),issues(idReadable))," +
		"customFields(name,value(name,login,text,presentation))"
	CommentFields    = "comments(id,text,created,updated,author(login,name))"
	AttachmentFields = "attachments(id,name,url,size,mimeType,created,author(login,name))"
)

// StateFilter returns the #Unresolved / #Resolved tokens for the selection.
// An empty result means no state filter.
func StateFilter(sel Selection) string {
	var tokens []string
	if sel.Has(UnresolvedIssues) {
		tokens = append(tokens, "#Unresolved")
	}
	if sel.Has(ResolvedIssues) {
		tokens = append(tokens, "#Resolved")
	}
	return strings.Join(tokens, " ")
}

var braces = strings.NewReplacer("{", "", "}", "")

// ProjectFilter scopes a search to the project. Names are wrapped in braces;
// a name that itself holds a brace cannot be quoted, so the short name is
// used instead, or the name with its braces stripped when there is none.
func ProjectFilter(project Project) string {
	if !strings.ContainsAny(project.Name, "{}") {
		return "project: {" + project.Name + "}"
	}
	if project.ShortName != "" {
		return "project: " + project.ShortName
	}
	return "project: {" + strings.TrimSpace(braces.Replace(project.Name)) + "}"
}

// BuildQuery scopes the search to the project and appends the state filter.
func BuildQuery(project Project, sel Selection) string {
	query := ProjectFilter(project)
	if filter := StateFilter(sel); filter != "" {
		query += " " + filter
	}
	return query
}

// BuildFields returns the baseline field list plus comment and attachment
// groups when those items are selected.
func BuildFields(sel Selection) string {
	fields := []string{BaselineFields}
	if sel.Has(Comments) {
		fields = append(fields, CommentFields)
	}
	if sel.Has(Attachments) {
		fields = append(fields, AttachmentFields)
	}
	return strings.Join(fields, ",")
}
