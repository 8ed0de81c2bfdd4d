package export

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"ytexport/internal/youtrack"
)

var quotes = strings.NewReplacer("'", "", "’", "", `"`, "")

// Slugify lowercases s, strips accents and replaces every run of
// characters outside [a-z0-9] with a single hyphen.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(quotes.Replace(folded))

	var b strings.Builder
	pendingHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// ProjectSlug names the project folder. Names with no ASCII letters or
// digits fall back to the project ID.
func ProjectSlug(project youtrack.Project) string {
	if slug := Slugify(project.Name); slug != "" {
		return slug
	}
	if slug := Slugify(project.ID); slug != "" {
		return "project-" + slug
	}
	return "project"
}

// AssignFolders gives every project its own folder under root. Projects whose
// names share a slug are told apart by their ID slug, and any name still
// taken after that gets a numeric suffix.
func AssignFolders(root string, projects []youtrack.Project) []ProjectFolder {
	slugs := make([]string, len(projects))
	count := make(map[string]int, len(projects))
	for i, p := range projects {
		slugs[i] = ProjectSlug(p)
		count[slugs[i]]++
	}
	for i, p := range projects {
		if count[slugs[i]] < 2 {
			continue
		}
		if id := Slugify(p.ID); id != "" {
			slugs[i] += "-" + id
		}
	}

	used := make(map[string]bool, len(projects))
	folders := make([]ProjectFolder, len(projects))
	for i, slug := range slugs {
		name := slug
		for n := 2; used[name]; n++ {
			name = slug + "-" + strconv.Itoa(n)
		}
		used[name] = true
		folders[i] = ProjectFolder{Dir: filepath.Join(root, name)}
	}
	return folders
}
