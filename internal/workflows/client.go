// Package workflows lists the Nextflow pipelines kept in a GitHub repository
// under nextflow/pipelines, pairing every .nf file of a project with every
// .json parameters file next to it.
package workflows

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/go-github/v74/github"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/httpclient"
)

const (
	DefaultAPIURL = "https://api.github.com/"
	PipelinesPath = "nextflow/pipelines"
)

type Project struct {
	Org     string `json:"org"`
	Repo    string `json:"repo"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
}

type File struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Workflow is a pipeline with one candidate parameters file. Its URLs are
// what dispatcher dispatch takes as pipeline and parameters URIs.
type Workflow struct {
	Project    Project `json:"project"`
	Pipeline   File    `json:"pipeline"`
	Parameters File    `json:"parameters"`
}

type Client struct {
	gh *github.Client
}

// NewClient lists contents through the retrying client. apiURL defaults to
// the public GitHub API.
func NewClient(httpClient *httpclient.Client, apiURL string) (*Client, error) {
	gh := github.NewClient(httpClient.HTTPClient())

	if apiURL != "" && apiURL != DefaultAPIURL {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub API URL: %w", err)
		}
		gh.BaseURL = u
	}

	return &Client{gh: gh}, nil
}

// Projects returns the directories below nextflow/pipelines.
func (c *Client) Projects(ctx context.Context, org, repo string) ([]Project, error) {
	entries, err := c.list(ctx, org, repo, PipelinesPath)
	if err != nil {
		return nil, err
	}

	var projects []Project
	for _, e := range entries {
		if e.GetType() != "dir" {
			continue
		}
		projects = append(projects, Project{
			Org:     org,
			Repo:    repo,
			Name:    e.GetName(),
			Path:    e.GetPath(),
			URL:     e.GetURL(),
			HTMLURL: e.GetHTMLURL(),
		})
	}

	return projects, nil
}

// ProjectWorkflows pairs each pipeline of the project with each parameters
// file.
func (c *Client) ProjectWorkflows(ctx context.Context, p Project) ([]Workflow, error) {
	dir := p.Path
	if dir == "" {
		dir = path.Join(PipelinesPath, p.Name)
	}

	entries, err := c.list(ctx, p.Org, p.Repo, dir)
	if err != nil {
		return nil, err
	}

	var pipelines, params []File
	for _, e := range entries {
		if e.GetType() != "file" {
			continue
		}
		f := File{Name: e.GetName(), URL: e.GetDownloadURL()}
		switch {
		case strings.HasSuffix(f.URL, ".nf"):
			pipelines = append(pipelines, f)
		case strings.HasSuffix(f.URL, ".json"):
			params = append(params, f)
		}
	}

	workflows := make([]Workflow, 0, len(pipelines)*len(params))
	for _, nf := range pipelines {
		for _, js := range params {
			workflows = append(workflows, Workflow{Project: p, Pipeline: nf, Parameters: js})
		}
	}

	return workflows, nil
}

// Workflows lists the workflows of every project in the repository.
func (c *Client) Workflows(ctx context.Context, org, repo string) ([]Workflow, error) {
	projects, err := c.Projects(ctx, org, repo)
	if err != nil {
		return nil, err
	}

	var all []Workflow
	for _, p := range projects {
		wfs, err := c.ProjectWorkflows(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("listing project %s: %w", p.Name, err)
		}
		all = append(all, wfs...)
	}

	slogctx.Debug(ctx, "Listed workflows", "org", org, "repo", repo, "projects", len(projects), "workflows", len(all))

	return all, nil
}

func (c *Client) list(ctx context.Context, org, repo, dir string) ([]*github.RepositoryContent, error) {
	file, entries, _, err := c.gh.Repositories.GetContents(ctx, org, repo, dir, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s/%s/%s: %w", org, repo, dir, err)
	}
	if file != nil {
		return nil, fmt.Errorf("listing %s/%s/%s: not a directory", org, repo, dir)
	}

	return entries, nil
}
