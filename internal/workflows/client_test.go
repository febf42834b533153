package workflows_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/oidc-login/internal/httpclient"
	"github.com/openkcm/oidc-login/internal/workflows"
)

type entry struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	URL         string `json:"url,omitempty"`
	HTMLURL     string `json:"html_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

const raw = "https://raw.example/org/repo/main/nextflow/pipelines/"

// contentsServer answers the contents API for one repository.
func contentsServer(t *testing.T, tree map[string]any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := tree[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newClient(t *testing.T, srv *httptest.Server) *workflows.Client {
	t.Helper()

	c, err := workflows.NewClient(
		httpclient.New(httpclient.WithPolicy(httpclient.RetryPolicy{MaxAttempts: 1})),
		srv.URL,
	)
	require.NoError(t, err)

	return c
}

func TestWorkflows(t *testing.T) {
	srv := contentsServer(t, map[string]any{
		"/repos/org/repo/contents/nextflow/pipelines": []entry{
			{Type: "dir", Name: "rnaseq", Path: "nextflow/pipelines/rnaseq", HTMLURL: "https://github.example/rnaseq"},
			{Type: "file", Name: "README.md", Path: "nextflow/pipelines/README.md", DownloadURL: raw + "README.md"},
			{Type: "dir", Name: "empty", Path: "nextflow/pipelines/empty"},
		},
		"/repos/org/repo/contents/nextflow/pipelines/rnaseq": []entry{
			{Type: "file", Name: "main.nf", DownloadURL: raw + "rnaseq/main.nf"},
			{Type: "file", Name: "small.json", DownloadURL: raw + "rnaseq/small.json"},
			{Type: "file", Name: "large.json", DownloadURL: raw + "rnaseq/large.json"},
			{Type: "dir", Name: "modules.nf"},
			{Type: "file", Name: "nextflow.config", DownloadURL: raw + "rnaseq/nextflow.config"},
		},
		"/repos/org/repo/contents/nextflow/pipelines/empty": []entry{},
	})

	got, err := newClient(t, srv).Workflows(t.Context(), "org", "repo")
	require.NoError(t, err)

	project := workflows.Project{
		Org:     "org",
		Repo:    "repo",
		Name:    "rnaseq",
		Path:    "nextflow/pipelines/rnaseq",
		HTMLURL: "https://github.example/rnaseq",
	}
	pipeline := workflows.File{Name: "main.nf", URL: raw + "rnaseq/main.nf"}
	want := []workflows.Workflow{
		{Project: project, Pipeline: pipeline, Parameters: workflows.File{Name: "small.json", URL: raw + "rnaseq/small.json"}},
		{Project: project, Pipeline: pipeline, Parameters: workflows.File{Name: "large.json", URL: raw + "rnaseq/large.json"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Workflows() mismatch (-want +got):\n%s", diff)
	}
}

func TestProjects(t *testing.T) {
	srv := contentsServer(t, map[string]any{
		"/repos/org/repo/contents/nextflow/pipelines": []entry{
			{Type: "dir", Name: "a", Path: "nextflow/pipelines/a"},
			{Type: "file", Name: "b.nf", Path: "nextflow/pipelines/b.nf"},
			{Type: "dir", Name: "c", Path: "nextflow/pipelines/c"},
		},
	})

	projects, err := newClient(t, srv).Projects(t.Context(), "org", "repo")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "a", projects[0].Name)
	assert.Equal(t, "c", projects[1].Name)
}

func TestWorkflows_Errors(t *testing.T) {
	tests := []struct {
		name string
		tree map[string]any
	}{
		{name: "repository without pipelines", tree: map[string]any{}},
		{
			name: "pipelines is a file",
			tree: map[string]any{
				"/repos/org/repo/contents/nextflow/pipelines": entry{Type: "file", Name: "pipelines"},
			},
		},
		{
			name: "project vanished",
			tree: map[string]any{
				"/repos/org/repo/contents/nextflow/pipelines": []entry{{Type: "dir", Name: "gone", Path: "nextflow/pipelines/gone"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := contentsServer(t, tt.tree)

			_, err := newClient(t, srv).Workflows(t.Context(), "org", "repo")
			assert.Error(t, err)
		})
	}
}
