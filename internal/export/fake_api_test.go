package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "ytexport/internal/errors"
	"ytexport/internal/progress"
	"ytexport/internal/youtrack"
)

type countReply struct {
	count *int
	err   error
}

// fakeAPI serves canned counts, issue pages and attachment bytes per project ID.
type fakeAPI struct {
	mu           sync.Mutex
	countReplies map[string][]countReply
	countCalls   map[string]int
	issues       map[string][]youtrack.Issue
	failAtSkip   map[string]int
	files        map[string][]byte
	pageSkips    map[string][]int
	pageDelay    time.Duration

	inflight    int
	maxInflight int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		countReplies: map[string][]countReply{},
		countCalls:   map[string]int{},
		issues:       map[string][]youtrack.Issue{},
		failAtSkip:   map[string]int{},
		files:        map[string][]byte{},
		pageSkips:    map[string][]int{},
	}
}

func (f *fakeAPI) IssueCount(_ context.Context, p youtrack.Project, _ youtrack.Selection) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.countCalls[p.ID]
	f.countCalls[p.ID]++
	replies := f.countReplies[p.ID]
	if len(replies) == 0 {
		total := len(f.issues[p.ID])
		return &total, nil
	}
	if n >= len(replies) {
		n = len(replies) - 1
	}
	return replies[n].count, replies[n].err
}

func (f *fakeAPI) Issues(_ context.Context, p youtrack.Project, _ youtrack.Selection, skip, limit int) ([]youtrack.Issue, error) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	delay := f.pageDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	f.pageSkips[p.ID] = append(f.pageSkips[p.ID], skip)

	if at, ok := f.failAtSkip[p.ID]; ok && skip >= at {
		apiErr := &youtrack.APIError{Method: http.MethodGet, Path: "/api/issues", StatusCode: http.StatusInternalServerError}
		return nil, apperrors.New(apperrors.CodeAPI, apiErr.Error(), apiErr)
	}
	all := f.issues[p.ID]
	if skip >= len(all) {
		return []youtrack.Issue{}, nil
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]youtrack.Issue(nil), all[skip:end]...), nil
}

func (f *fakeAPI) AttachmentContent(_ context.Context, att youtrack.Attachment) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[att.URL]
	if !ok {
		return nil, apperrors.New(apperrors.CodeDownload, "status 404", nil)
	}
	return data, nil
}

func (f *fakeAPI) calls(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countCalls[projectID]
}

func makeIssue(t *testing.T, id string, resolved bool, atts ...youtrack.Attachment) youtrack.Issue {
	t.Helper()
	payload := map[string]any{"id": "2-" + id, "idReadable": id, "summary": "Issue " + id, "resolved": nil}
	if resolved {
		payload["resolved"] = 1700000000000
	}
	if len(atts) > 0 {
		payload["attachments"] = atts
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var issue youtrack.Issue
	require.NoError(t, json.Unmarshal(raw, &issue))
	return issue
}

// makeIssues builds n issues; the first `resolved` of them are resolved.
func makeIssues(t *testing.T, prefix string, n, resolved int) []youtrack.Issue {
	t.Helper()
	issues := make([]youtrack.Issue, n)
	for i := range issues {
		issues[i] = makeIssue(t, fmt.Sprintf("%s-%d", prefix, i+1), i < resolved)
	}
	return issues
}

func intPtr(v int) *int { return &v }

// recorder is a concurrency-safe progress.Reporter.
type recorder struct {
	mu      sync.Mutex
	updates []progress.Update
}

func (r *recorder) Report(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) last() progress.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return progress.Update{}
	}
	return r.updates[len(r.updates)-1]
}

// final returns the last update seen for each project key.
func (r *recorder) final() map[string]progress.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]progress.Update{}
	for _, u := range r.updates {
		out[u.Key] = u
	}
	return out
}
