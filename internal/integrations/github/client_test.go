package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"router-agent/internal/domain"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New("gh-token",
		WithBaseURL(srv.URL),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestGetRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octocat/hello", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		writeJSON(w, `{
			"name": "hello",
			"full_name": "octocat/hello",
			"html_url": "https://github.com/octocat/hello",
			"owner": {"login": "octocat"},
			"description": "demo",
			"stargazers_count": 42,
			"forks_count": 3,
			"open_issues_count": 1,
			"language": "Go",
			"created_at": "2020-01-02T03:04:05Z",
			"updated_at": "2024-05-06T07:08:09Z",
			"size": 120,
			"default_branch": "main",
			"license": {"name": "MIT License"},
			"topics": ["cli", "go"]
		}`)
	})
	mux.HandleFunc("GET /repos/octocat/hello/languages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"Go": 1000, "Shell": 20}`)
	})
	mux.HandleFunc("GET /repos/octocat/hello/readme", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"name": "README.md", "size": 512}`)
	})
	mux.HandleFunc("GET /repos/octocat/hello/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/octocat/hello/commits?page=87&per_page=1>; rel="last"`, r.Host))
		writeJSON(w, `[{"sha": "abc"}]`)
	})
	mux.HandleFunc("GET /repos/octocat/hello/contributors", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"login": "octocat"}]`)
	})
	mux.HandleFunc("GET /repos/octocat/hello/contents/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[
			{"name": ".github", "type": "dir"},
			{"name": "Dockerfile", "type": "file"},
			{"name": "main_test.go", "type": "file"},
			{"name": "README.md", "type": "file"}
		]`)
	})
	c := newTestClient(t, mux)

	facts, err := c.GetRepository(context.Background(), "octocat", "hello")
	require.NoError(t, err)
	require.Equal(t, "octocat/hello", facts.FullName)
	require.Equal(t, 42, facts.Stars)
	require.Equal(t, "2020-01-02", facts.CreatedAt)
	require.Equal(t, "2024-05-06", facts.UpdatedAt)
	require.Equal(t, "MIT License", facts.License)
	require.Equal(t, []string{"cli", "go"}, facts.Topics)
	require.Equal(t, map[string]int{"Go": 1000, "Shell": 20}, facts.Languages)
	require.True(t, facts.HasReadme)
	require.Equal(t, 512, facts.ReadmeSize)
	require.Equal(t, 87, facts.Commits)
	require.Equal(t, 1, facts.Contributors)
	require.True(t, facts.HasCI)
	require.True(t, facts.HasDocker)
	require.Equal(t, []string{"Dockerfile"}, facts.DockerFiles)
	require.Equal(t, []string{"main_test.go"}, facts.TestFiles)
}

func TestGetRepository_EnrichmentsAreOptional(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octocat/bare", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"name": "bare", "full_name": "octocat/bare", "owner": {"login": "octocat"}}`)
	})
	c := newTestClient(t, mux)

	facts, err := c.GetRepository(context.Background(), "octocat", "bare")
	require.NoError(t, err)
	require.Equal(t, "bare", facts.Name)
	require.False(t, facts.HasReadme)
	require.Zero(t, facts.Commits)
	require.False(t, facts.HasCI)
	require.Nil(t, facts.Languages)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		header map[string]string
		want   error
	}{
		{name: "not found", status: http.StatusNotFound, want: domain.ErrNotFound},
		{name: "primary rate limit", status: http.StatusForbidden, header: map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "4102444800"}, want: domain.ErrRateLimited},
		{name: "too many requests", status: http.StatusTooManyRequests, want: domain.ErrRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"message": "API rate limit exceeded"}`)
			})
			c := newTestClient(t, mux)

			_, err := c.GetRepository(context.Background(), "o", "r")
			require.ErrorIs(t, err, tc.want)
			_, err = c.GetUser(context.Background(), "o")
			require.ErrorIs(t, err, tc.want)
			_, err = c.ListPublicRepos(context.Background(), "o")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGetUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/octocat", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{
			"login": "octocat",
			"name": "The Octocat",
			"bio": "mascot",
			"followers": 10,
			"public_repos": 2,
			"hireable": true,
			"type": "User",
			"created_at": "2011-01-25T18:44:36Z"
		}`)
	})
	mux.HandleFunc("GET /users/octocat/orgs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"login": "github", "description": "How people build software"}]`)
	})
	mux.HandleFunc("GET /users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "owner", r.URL.Query().Get("type"))
		require.Equal(t, "updated", r.URL.Query().Get("sort"))
		writeJSON(w, `[
			{"name": "a", "stargazers_count": 5, "forks_count": 1, "open_issues_count": 2, "topics": ["go", "cli"]},
			{"name": "b", "stargazers_count": 7, "forks_count": 0, "open_issues_count": 0, "topics": ["go", "web"], "fork": true}
		]`)
	})
	mux.HandleFunc("GET /repos/octocat/a/languages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"Go": 100, "HTML": 10}`)
	})
	mux.HandleFunc("GET /repos/octocat/b/languages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"HTML": 500}`)
	})
	c := newTestClient(t, mux)

	facts, err := c.GetUser(context.Background(), "octocat")
	require.NoError(t, err)
	require.Equal(t, "The Octocat", facts.Profile.Name)
	require.True(t, facts.Profile.Hireable)
	require.Equal(t, "2011-01-25", facts.Profile.CreatedAt)
	require.Equal(t, []domain.Organization{{Name: "github", Description: "How people build software"}}, facts.Organizations)
	require.Len(t, facts.Repositories, 2)
	require.True(t, facts.Repositories[1].IsFork)
	require.Equal(t, []domain.LanguageShare{{Name: "HTML", Bytes: 510}, {Name: "Go", Bytes: 100}}, facts.Languages)
	require.Equal(t, []string{"go", "cli", "web"}, facts.Topics)
	require.Equal(t, domain.ContributionStats{TotalStars: 12, TotalForks: 1, TotalIssues: 2}, facts.Stats)
}

func TestListPublicRepos_FollowsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, `[{"name": "third"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/users/octocat/repos?page=2>; rel="next"`, r.Host))
		writeJSON(w, `[{"name": "first", "full_name": "octocat/first", "stargazers_count": 4}, {"name": "second"}]`)
	})
	c := newTestClient(t, mux)

	repos, err := c.ListPublicRepos(context.Background(), "octocat")
	require.NoError(t, err)
	require.Equal(t, []domain.RepoSummary{
		{Name: "first", FullName: "octocat/first", Stars: 4},
		{Name: "second"},
		{Name: "third"},
	}, repos)
}
