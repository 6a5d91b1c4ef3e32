// Package github reads repository and user facts from the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/sync/errgroup"

	"router-agent/internal/domain"
)

const (
	maxProfileRepos = 20
	maxListedRepos  = 300
	listPageSize    = 100
	enrichmentLimit = 4
	dateLayout      = "2006-01-02"
	defaultTimeout  = 15 * time.Second
)

var (
	ciMarkers     = []string{".github", ".travis.yml", "Jenkinsfile", ".gitlab-ci.yml", ".circleci"}
	dockerMarkers = []string{"Dockerfile", "docker-compose.yml", "docker-compose.yaml", "compose.yaml", "compose.yml"}
)

// Client adapts go-github to the specialist CodeHost interface.
type Client struct {
	gh     *gh.Client
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithBaseURL points the client at another API root, such as GitHub
// Enterprise or a test server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = strings.TrimSpace(baseURL) }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a client. An empty token makes unauthenticated requests,
// which GitHub rate limits much more aggressively.
func New(token string, opts ...Option) (*Client, error) {
	o := options{httpClient: &http.Client{Timeout: defaultTimeout}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	client := gh.NewClient(o.httpClient)
	if token = strings.TrimSpace(token); token != "" {
		client = client.WithAuthToken(token)
	}
	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github: parse base url: %w", err)
		}
		client.BaseURL = u
	}
	return &Client{gh: client, logger: o.logger}, nil
}

// GetRepository returns the repository snapshot. Only the repository
// lookup itself can fail; README, commits, contributors and root listing
// are best-effort.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (domain.RepoFacts, error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return domain.RepoFacts{}, mapError(fmt.Sprintf("get repository %s/%s", owner, repo), err)
	}

	facts := domain.RepoFacts{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		URL:           r.GetHTMLURL(),
		Description:   r.GetDescription(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		Language:      r.GetLanguage(),
		CreatedAt:     formatDate(r.GetCreatedAt()),
		UpdatedAt:     formatDate(r.GetUpdatedAt()),
		SizeKB:        r.GetSize(),
		DefaultBranch: r.GetDefaultBranch(),
		License:       r.GetLicense().GetName(),
		Topics:        r.Topics,
	}
	owner, repo = r.GetOwner().GetLogin(), r.GetName()
	if owner == "" {
		owner = strings.SplitN(facts.FullName, "/", 2)[0]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichmentLimit)
	g.Go(func() error {
		if langs, ok := c.languages(gctx, owner, repo); ok {
			facts.Languages = langs
		}
		return nil
	})
	var readmeSize int
	var hasReadme bool
	g.Go(func() error {
		readmeSize, hasReadme = c.readmeSize(gctx, owner, repo)
		return nil
	})
	var commits int
	g.Go(func() error {
		commits, _ = c.commitCount(gctx, owner, repo)
		return nil
	})
	var contributors int
	g.Go(func() error {
		contributors, _ = c.contributorCount(gctx, owner, repo)
		return nil
	})
	var rootNames []string
	g.Go(func() error {
		rootNames, _ = c.rootNames(gctx, owner, repo)
		return nil
	})
	_ = g.Wait()

	facts.HasReadme, facts.ReadmeSize = hasReadme, readmeSize
	facts.Commits = commits
	facts.Contributors = contributors
	facts.HasCI = containsAny(rootNames, ciMarkers)
	facts.DockerFiles = matching(rootNames, func(n string) bool { return containsAny([]string{n}, dockerMarkers) })
	facts.HasDocker = len(facts.DockerFiles) > 0
	facts.TestFiles = matching(rootNames, func(n string) bool { return strings.Contains(strings.ToLower(n), "test") })
	facts.HasTests = len(facts.TestFiles) > 0
	return facts, nil
}

func (c *Client) languages(ctx context.Context, owner, repo string) (map[string]int, bool) {
	langs, _, err := c.gh.Repositories.ListLanguages(ctx, owner, repo)
	if err != nil {
		c.logger.Debug("languages unavailable", "repo", owner+"/"+repo, "err", err)
		return nil, false
	}
	return langs, true
}

func (c *Client) readmeSize(ctx context.Context, owner, repo string) (int, bool) {
	readme, _, err := c.gh.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		c.logger.Debug("readme unavailable", "repo", owner+"/"+repo, "err", err)
		return 0, false
	}
	return readme.GetSize(), true
}

// commitCount asks for one commit per page; the last page number is then
// the commit count on the default branch.
func (c *Client) commitCount(ctx context.Context, owner, repo string) (int, bool) {
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, &gh.CommitsListOptions{
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		c.logger.Debug("commit count unavailable", "repo", owner+"/"+repo, "err", err)
		return 0, false
	}
	return pagedCount(resp, len(commits)), true
}

func (c *Client) contributorCount(ctx context.Context, owner, repo string) (int, bool) {
	contributors, resp, err := c.gh.Repositories.ListContributors(ctx, owner, repo, &gh.ListContributorsOptions{
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		c.logger.Debug("contributor count unavailable", "repo", owner+"/"+repo, "err", err)
		return 0, false
	}
	return pagedCount(resp, len(contributors)), true
}

func (c *Client) rootNames(ctx context.Context, owner, repo string) ([]string, bool) {
	_, entries, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, "", nil)
	if err != nil {
		c.logger.Debug("root listing unavailable", "repo", owner+"/"+repo, "err", err)
		return nil, false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.GetName())
	}
	return names, true
}

// GetUser returns the profile snapshot with up to 20 of the user's most
// recently updated owned repositories.
func (c *Client) GetUser(ctx context.Context, username string) (domain.UserFacts, error) {
	u, _, err := c.gh.Users.Get(ctx, username)
	if err != nil {
		return domain.UserFacts{}, mapError("get user "+username, err)
	}

	facts := domain.UserFacts{Profile: domain.UserProfile{
		Name:            u.GetName(),
		Login:           u.GetLogin(),
		Bio:             u.GetBio(),
		Company:         u.GetCompany(),
		Location:        u.GetLocation(),
		Blog:            u.GetBlog(),
		Email:           u.GetEmail(),
		TwitterUsername: u.GetTwitterUsername(),
		Hireable:        u.GetHireable(),
		Type:            u.GetType(),
		Followers:       u.GetFollowers(),
		Following:       u.GetFollowing(),
		PublicRepos:     u.GetPublicRepos(),
		PublicGists:     u.GetPublicGists(),
		CreatedAt:       formatDate(u.GetCreatedAt()),
		UpdatedAt:       formatDate(u.GetUpdatedAt()),
	}}
	login := facts.Profile.Login
	if login == "" {
		login = username
	}

	if orgs, ok := c.organizations(ctx, login); ok {
		facts.Organizations = orgs
	}

	repos, _, err := c.gh.Repositories.ListByUser(ctx, login, &gh.RepositoryListByUserOptions{
		Type:        "owner",
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: maxProfileRepos},
	})
	if err != nil {
		c.logger.Warn("profile repositories unavailable", "username", login, "err", err)
		return facts, nil
	}
	if len(repos) > maxProfileRepos {
		repos = repos[:maxProfileRepos]
	}

	perRepo := make([]map[string]int, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichmentLimit)
	for i, r := range repos {
		g.Go(func() error {
			if langs, ok := c.languages(gctx, login, r.GetName()); ok {
				perRepo[i] = langs
			}
			return nil
		})
	}
	_ = g.Wait()

	totals := map[string]int{}
	seenTopic := map[string]bool{}
	for i, r := range repos {
		facts.Repositories = append(facts.Repositories, domain.ProfileRepo{
			Name:        r.GetName(),
			Description: r.GetDescription(),
			Language:    r.GetLanguage(),
			Stars:       r.GetStargazersCount(),
			Forks:       r.GetForksCount(),
			OpenIssues:  r.GetOpenIssuesCount(),
			UpdatedAt:   formatDate(r.GetUpdatedAt()),
			PushedAt:    formatDate(r.GetPushedAt()),
			IsFork:      r.GetFork(),
			Topics:      r.Topics,
		})
		for lang, n := range perRepo[i] {
			totals[lang] += n
		}
		for _, t := range r.Topics {
			if !seenTopic[t] {
				seenTopic[t] = true
				facts.Topics = append(facts.Topics, t)
			}
		}
		facts.Stats.TotalStars += r.GetStargazersCount()
		facts.Stats.TotalForks += r.GetForksCount()
		facts.Stats.TotalIssues += r.GetOpenIssuesCount()
	}
	for lang, n := range totals {
		facts.Languages = append(facts.Languages, domain.LanguageShare{Name: lang, Bytes: n})
	}
	domain.SortLanguages(facts.Languages)
	return facts, nil
}

func (c *Client) organizations(ctx context.Context, login string) ([]domain.Organization, bool) {
	orgs, _, err := c.gh.Organizations.List(ctx, login, &gh.ListOptions{PerPage: listPageSize})
	if err != nil {
		c.logger.Debug("organizations unavailable", "username", login, "err", err)
		return nil, false
	}
	out := make([]domain.Organization, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, domain.Organization{Name: o.GetLogin(), Description: o.GetDescription()})
	}
	return out, true
}

// ListPublicRepos lists the owner's repositories, most recently updated
// first, up to a fixed cap.
func (c *Client) ListPublicRepos(ctx context.Context, owner string) ([]domain.RepoSummary, error) {
	opts := &gh.RepositoryListByUserOptions{
		Type:        "owner",
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: listPageSize},
	}
	var out []domain.RepoSummary
	for len(out) < maxListedRepos {
		repos, resp, err := c.gh.Repositories.ListByUser(ctx, owner, opts)
		if err != nil {
			return nil, mapError("list repositories of "+owner, err)
		}
		for _, r := range repos {
			out = append(out, domain.RepoSummary{
				Name:        r.GetName(),
				FullName:    r.GetFullName(),
				Description: r.GetDescription(),
				Stars:       r.GetStargazersCount(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	if len(out) > maxListedRepos {
		out = out[:maxListedRepos]
	}
	return out, nil
}

func mapError(op string, err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("github: %s: %w: %v", op, domain.ErrRateLimited, err)
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("github: %s: %w", op, domain.ErrNotFound)
		case http.StatusTooManyRequests:
			return fmt.Errorf("github: %s: %w: %v", op, domain.ErrRateLimited, err)
		}
	}
	return fmt.Errorf("github: %s: %w", op, err)
}

func pagedCount(resp *gh.Response, n int) int {
	if resp != nil && resp.LastPage > 0 {
		return resp.LastPage
	}
	return n
}

func formatDate(ts gh.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(dateLayout)
}

func containsAny(names, markers []string) bool {
	for _, n := range names {
		for _, m := range markers {
			if n == m {
				return true
			}
		}
	}
	return false
}

func matching(names []string, keep func(string) bool) []string {
	var out []string
	for _, n := range names {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
