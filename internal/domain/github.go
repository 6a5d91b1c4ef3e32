package domain

import (
	"errors"
	"sort"
)

// ErrNotFound is returned by code-hosting lookups when the user or
// repository does not exist or is not visible.
var ErrNotFound = errors.New("not found")

// ErrRateLimited is returned when the code-hosting API refuses further
// requests for now.
var ErrRateLimited = errors.New("rate limited")

// RepoFacts is the repository snapshot used by the repository specialist.
type RepoFacts struct {
	Name          string
	FullName      string
	URL           string
	Description   string
	Stars         int
	Forks         int
	OpenIssues    int
	Language      string
	Languages     map[string]int
	CreatedAt     string
	UpdatedAt     string
	SizeKB        int
	DefaultBranch string
	License       string
	Topics        []string

	HasReadme    bool
	ReadmeSize   int
	Commits      int
	Contributors int
	HasCI        bool
	HasTests     bool
	HasDocker    bool
	TestFiles    []string
	DockerFiles  []string
}

// RepoSummary is one entry of an owner's public repository listing.
type RepoSummary struct {
	Name        string
	FullName    string
	Description string
	Stars       int
}

// UserProfile holds the public profile fields of a code-hosting user.
type UserProfile struct {
	Name            string
	Login           string
	Bio             string
	Company         string
	Location        string
	Blog            string
	Email           string
	TwitterUsername string
	Hireable        bool
	Type            string
	Followers       int
	Following       int
	PublicRepos     int
	PublicGists     int
	CreatedAt       string
	UpdatedAt       string
}

// ProfileRepo is a repository owned by a profiled user.
type ProfileRepo struct {
	Name        string
	Description string
	Language    string
	Stars       int
	Forks       int
	OpenIssues  int
	UpdatedAt   string
	PushedAt    string
	IsFork      bool
	Topics      []string
}

// Organization is a public organization membership.
type Organization struct {
	Name        string
	Description string
}

// ContributionStats aggregates counters across the fetched repositories.
type ContributionStats struct {
	TotalStars  int
	TotalForks  int
	TotalIssues int
}

// LanguageShare is a language with its aggregated byte count.
type LanguageShare struct {
	Name  string
	Bytes int
}

// UserFacts is the profile snapshot used by the profile specialist.
type UserFacts struct {
	Profile       UserProfile
	Repositories  []ProfileRepo
	Languages     []LanguageShare
	Topics        []string
	Stats         ContributionStats
	Organizations []Organization
}

// SortLanguages orders shares by byte count, largest first, breaking ties
// by name so the order is stable across runs.
func SortLanguages(l []LanguageShare) {
	sort.Slice(l, func(i, j int) bool {
		if l[i].Bytes != l[j].Bytes {
			return l[i].Bytes > l[j].Bytes
		}
		return l[i].Name < l[j].Name
	})
}
