package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ytexport/internal/errors"
	"ytexport/internal/progress"
	"ytexport/internal/youtrack"
)

var allIssues = youtrack.NewSelection(youtrack.UnresolvedIssues, youtrack.ResolvedIssues)

func TestRunIsolatesProjectFailures(t *testing.T) {
	api := newFakeAPI()
	api.issues["0-a"] = makeIssues(t, "A", 120, 20)
	api.issues["0-b"] = makeIssues(t, "B", 120, 20)
	api.issues["0-c"] = makeIssues(t, "C", 5, 5)
	api.failAtSkip["0-b"] = 50

	root := filepath.Join(t.TempDir(), "exports")
	rec := &recorder{}
	orch := NewOrchestrator(api, Options{Root: root, PageSize: 50, BatchSize: 100, Reporter: rec})

	report, err := orch.Run(context.Background(), []string{"Alpha | ID:0-a", "Beta | ID:0-b", "Gamma | ID:0-c"}, allIssues)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	alpha, beta, gamma := report.Results[0], report.Results[1], report.Results[2]
	assert.Equal(t, "Alpha", alpha.Project.Name)
	assert.Equal(t, progress.StateComplete, alpha.State)
	assert.Equal(t, 120, alpha.Exported)
	require.NotNil(t, alpha.Metadata)
	assert.Equal(t, 20, alpha.Metadata.ResolvedCount)

	assert.Equal(t, progress.StateError, beta.State)
	require.Error(t, beta.Err)
	assert.True(t, apperrors.IsCode(beta.Err, apperrors.CodeExport))
	assert.Nil(t, beta.Metadata)

	assert.Equal(t, progress.StateComplete, gamma.State)
	assert.Equal(t, 1.0, gamma.Metadata.ResolutionRate)

	assert.FileExists(t, filepath.Join(root, "alpha", "metadata.json"))
	assert.FileExists(t, filepath.Join(root, "gamma", "metadata.json"))
	assert.NoFileExists(t, filepath.Join(root, "beta", "metadata.json"))

	assert.Len(t, report.Succeeded(), 2)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "0-b", report.Failed()[0].Project.ID)
	assert.Equal(t, 125, report.Exported())

	final := rec.final()
	assert.Equal(t, progress.StateError, final["0-b"].State)
	assert.Contains(t, final["0-b"].Description, "Error exporting")
	assert.Equal(t, "Complete!", final["0-a"].Description)
}

func TestRunRejectsMalformedProjectsBeforeIO(t *testing.T) {
	api := newFakeAPI()
	root := filepath.Join(t.TempDir(), "exports")

	report, err := NewOrchestrator(api, Options{Root: root}).Run(context.Background(),
		[]string{"Alpha | ID:0-a", "Beta without id"}, allIssues)

	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, apperrors.CodeMalformedInput, apperrors.CodeOf(err))
	assert.NoDirExists(t, root)
	assert.Zero(t, api.calls("0-a"))
}

func TestRunWithEmptySelectionIsNoop(t *testing.T) {
	api := newFakeAPI()
	root := filepath.Join(t.TempDir(), "exports")

	report, err := NewOrchestrator(api, Options{Root: root}).Run(context.Background(), []string{"Alpha | ID:0-a"}, youtrack.NewSelection())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.NoDirExists(t, root)
	assert.Zero(t, api.calls("0-a"))

	report, err = NewOrchestrator(api, Options{Root: root}).Run(context.Background(), nil, allIssues)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestRunHidesProjectsWithoutIssues(t *testing.T) {
	api := newFakeAPI()
	api.countReplies["0-e"] = []countReply{{count: nil}}
	api.countReplies["0-z"] = []countReply{{count: intPtr(0)}}
	root := t.TempDir()

	report, err := NewOrchestrator(api, Options{Root: root}).Run(context.Background(), []string{"Empty | ID:0-e", "Zero | ID:0-z"}, allIssues)
	require.NoError(t, err)

	for _, res := range report.Results {
		assert.Equal(t, progress.StateHidden, res.State, res.Project.Name)
		assert.NoError(t, res.Err)
		assert.Zero(t, res.Exported)
		assert.Empty(t, api.pageSkips[res.Project.ID], "no export for empty projects")
	}
	assert.NoDirExists(t, filepath.Join(root, "empty"))
}

func TestRunMarksCompleteWhenFewerIssuesThanCounted(t *testing.T) {
	api := newFakeAPI()
	api.issues["0-a"] = makeIssues(t, "A", 3, 0)
	api.countReplies["0-a"] = []countReply{{count: intPtr(5)}}

	report, err := NewOrchestrator(api, Options{Root: t.TempDir()}).Run(context.Background(), []string{"Alpha | ID:0-a"}, allIssues)
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, progress.StateComplete, res.State)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Exported)
}

func TestRunPollingExhaustionFailsOnlyThatProject(t *testing.T) {
	api := newFakeAPI()
	api.countReplies["0-slow"] = notReady(1)
	api.issues["0-ok"] = makeIssues(t, "OK", 2, 0)

	report, err := NewOrchestrator(api, Options{Root: t.TempDir(), MaxAttempts: 3}).Run(context.Background(),
		[]string{"Slow | ID:0-slow", "Fine | ID:0-ok"}, allIssues)
	require.NoError(t, err)

	assert.ErrorIs(t, report.Results[0].Err, ErrCountNotReady)
	assert.Equal(t, 3, api.calls("0-slow"))
	assert.Equal(t, progress.StateComplete, report.Results[1].State)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	api := newFakeAPI()
	api.pageDelay = 20 * time.Millisecond
	labels := make([]string, 0, 6)
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		api.issues[id] = makeIssues(t, "P"+id, 1, 0)
		labels = append(labels, youtrack.Project{ID: id, Name: "Project " + id}.Label())
	}

	report, err := NewOrchestrator(api, Options{Root: t.TempDir(), Concurrency: 2}).Run(context.Background(), labels, allIssues)
	require.NoError(t, err)
	assert.Len(t, report.Succeeded(), 6)
	assert.LessOrEqual(t, api.maxInflight, 2)
	assert.GreaterOrEqual(t, api.maxInflight, 1)
}

func TestRunAgainstHTTPServer(t *testing.T) {
	var countCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/issuesGetter/count", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "project: {Web Site} #Unresolved #Resolved", body["query"])
		if countCalls.Add(1) < 3 {
			_, _ = io.WriteString(w, `{"count":-1}`)
			return
		}
		_, _ = io.WriteString(w, `{"count":2}`)
	})
	mux.HandleFunc("/api/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("fields"), "attachments(")
		if r.URL.Query().Get("$skip") != "0" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[
			{"id":"2-1","idReadable":"WEB-1","resolved":null,"attachments":[{"id":"8-1","name":"trace.log","url":"/api/files/8-1?sign=s"}]},
			{"id":"2-2","idReadable":"WEB-2","resolved":1700000000000,"attachments":[]}
		]`)
	})
	mux.HandleFunc("/api/files/8-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer perm:it", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "trace contents")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := youtrack.NewClient(youtrack.ClientConfig{BaseURL: server.URL, Token: "perm:it"})
	require.NoError(t, err)

	root := t.TempDir()
	sel := youtrack.NewSelection(youtrack.UnresolvedIssues, youtrack.ResolvedIssues, youtrack.Attachments)
	report, err := NewOrchestrator(client, Options{Root: root, PollingDelay: time.Millisecond}).
		Run(context.Background(), []string{"Web Site | ID:0-9"}, sel)
	require.NoError(t, err)

	res := report.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, progress.StateComplete, res.State)
	assert.Equal(t, int32(3), countCalls.Load())
	assert.Equal(t, filepath.Join(root, "web-site"), res.Folder)

	data, err := os.ReadFile(filepath.Join(root, "web-site", "attachments", "WEB-1", "8-1_trace.log"))
	require.NoError(t, err)
	assert.Equal(t, "trace contents", string(data))

	meta, err := newProjectFolder(root, res.Project).readMetadata()
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalIssues)
	assert.Equal(t, 0.5, meta.ResolutionRate)
	assert.Equal(t, 1, meta.TotalAttachments)
}

func TestRunGivesCollidingSlugsSeparateFolders(t *testing.T) {
	api := newFakeAPI()
	api.issues["0-a"] = makeIssues(t, "WEB", 30, 10)
	api.issues["0-b"] = makeIssues(t, "SITE", 20, 5)
	api.pageDelay = 2 * time.Millisecond

	root := t.TempDir()
	report, err := NewOrchestrator(api, Options{Root: root, PageSize: 5, BatchSize: 100}).
		Run(context.Background(), []string{"Web Site | ID:0-a", "web-site | ID:0-b"}, allIssues)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	first, second := report.Results[0], report.Results[1]
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, filepath.Join(root, "web-site-0-a"), first.Folder)
	assert.Equal(t, filepath.Join(root, "web-site-0-b"), second.Folder)
	assert.NoDirExists(t, filepath.Join(root, "web-site"))

	for _, tc := range []struct {
		res  ProjectResult
		want int
	}{{first, 30}, {second, 20}} {
		folder := ProjectFolder{Dir: tc.res.Folder}
		items, err := folder.readBatch(1)
		require.NoError(t, err)
		assert.Len(t, items, tc.want)
		meta, err := folder.readMetadata()
		require.NoError(t, err)
		assert.Equal(t, tc.want, meta.TotalIssues)
	}
}

func TestRunClearsStaleOutputForEmptyProject(t *testing.T) {
	api := newFakeAPI()
	root := t.TempDir()

	stale := newProjectFolder(root, youtrack.Project{ID: "0-1", Name: "Demo"})
	require.NoError(t, stale.AppendIssue(1, makeIssue(t, "DEMO-1", false)))
	require.NoError(t, stale.WriteMetadata(NewMetadata(Counters{Unresolved: 1}, time.Now())))
	kept, err := stale.SaveAttachment("DEMO-1", youtrack.Attachment{ID: "8-1", Name: "a.txt"}, []byte("a"))
	require.NoError(t, err)

	report, err := NewOrchestrator(api, Options{Root: root}).
		Run(context.Background(), []string{"Demo | ID:0-1", "Empty | ID:0-2"}, allIssues)
	require.NoError(t, err)

	for _, res := range report.Results {
		assert.Equal(t, progress.StateHidden, res.State, res.Project.Name)
		assert.NoError(t, res.Err)
	}
	assert.NoFileExists(t, stale.BatchPath(1))
	assert.NoFileExists(t, stale.MetadataPath())
	assert.FileExists(t, kept)
	assert.NoDirExists(t, filepath.Join(root, "empty"))
}

func TestRunFillsShortNamesFromKnownProjects(t *testing.T) {
	api := newFakeAPI()
	api.issues["0-1"] = makeIssues(t, "CORE", 2, 0)

	report, err := NewOrchestrator(api, Options{
		Root:  t.TempDir(),
		Known: []youtrack.Project{{ID: "0-1", Name: "Core {v2}", ShortName: "CORE"}},
	}).Run(context.Background(), []string{"Core {v2} | ID:0-1"}, allIssues)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, "CORE", res.Project.ShortName)
	assert.Equal(t, "project: CORE #Unresolved #Resolved", youtrack.BuildQuery(res.Project, allIssues))
	assert.Equal(t, 2, res.Exported)
}
