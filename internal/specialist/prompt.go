package specialist

import (
	"fmt"
	"strings"

	"router-agent/internal/domain"
)

func generalPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You are a purely logical assistant.",
		"",
		"Behavior Rules:",
		"1) Focus only on facts and information.",
		"2) Give clear, concise answers based on logic and evidence.",
		"3) Do not address emotions or provide emotional support.",
		"4) Be direct and straightforward.",
	}, "\n")
}

func repoAnalysisPrompt(f domain.RepoFacts, url string) string {
	return strings.Join([]string{
		"Role:",
		"You are an expert code reviewer and GitHub repository analyzer.",
		"",
		"Repository Data:",
		repoContext(f),
		"",
		"Task:",
		"Rate the repository from 1 to 10 on each of these categories:",
		"1) Code Quality: readability, maintainability, language usage",
		"2) Rigor & Reliability: tests, commit frequency, issue management",
		"3) Architecture & Scalability: structure, modularity",
		"4) Operational Awareness: CI/CD, containers, deployment readiness",
		"5) Documentation: README quality and completeness",
		"6) API Design: project structure and organization",
		"7) Dependency Management: language ecosystem, package management",
		"8) Security: license presence, security practices",
		"9) State Management: maintenance and update frequency",
		"10) Code Review Readiness: overall quality indicators",
		"",
		"Output Contract (no explanations):",
		"🔍 **GitHub Repository Analysis**",
		"",
		"**Repository**: " + f.FullName,
		"**URL**: " + url,
		"",
		"**Scores:**",
		"- Code Quality: X/10",
		"- Rigor & Reliability: X/10",
		"- Architecture & Scalability: X/10",
		"- Operational Awareness: X/10",
		"- Documentation: X/10",
		"- API Design: X/10",
		"- Dependency Management: X/10",
		"- Security: X/10",
		"- State Management: X/10",
		"- Code Review Readiness: X/10",
		"",
		"**Overall Grade: X/10**",
	}, "\n")
}

func repoContext(f domain.RepoFacts) string {
	langs := make([]string, 0, len(f.Languages))
	for _, l := range sortedLanguages(f.Languages) {
		langs = append(langs, l.Name)
	}
	lines := []string{
		"Repository: " + f.FullName,
		"Description: " + orDefault(f.Description, "No description"),
		"Primary Language: " + orDefault(f.Language, "Not specified"),
		"Languages Used: " + orDefault(strings.Join(langs, ", "), "None detected"),
		"",
		"Stats:",
		fmt.Sprintf("- Stars: %d", f.Stars),
		fmt.Sprintf("- Forks: %d", f.Forks),
		fmt.Sprintf("- Open Issues: %d", f.OpenIssues),
		fmt.Sprintf("- Contributors: %d", f.Contributors),
		fmt.Sprintf("- Total Commits: %d", f.Commits),
		"- Created: " + f.CreatedAt,
		"- Last Updated: " + f.UpdatedAt,
		fmt.Sprintf("- Size: %d KB", f.SizeKB),
		"- Default Branch: " + orDefault(f.DefaultBranch, "unknown"),
		"",
		"Features:",
		fmt.Sprintf("- README: %s (%d bytes)", yesNo(f.HasReadme), f.ReadmeSize),
		"- License: " + orDefault(f.License, "No license"),
		"- CI/CD: " + yesNo(f.HasCI),
		"- Tests: " + yesNo(f.HasTests) + listSuffix(f.TestFiles),
		"- Docker: " + yesNo(f.HasDocker) + listSuffix(f.DockerFiles),
		"- Topics: " + orDefault(strings.Join(f.Topics, ", "), "None"),
	}
	return strings.Join(lines, "\n")
}

func profileAnalysisPrompt(f domain.UserFacts) string {
	p := f.Profile

	langs := make([]string, 0, 10)
	for i, l := range f.Languages {
		if i == 10 {
			break
		}
		langs = append(langs, l.Name)
	}
	topics := f.Topics
	if len(topics) > 20 {
		topics = topics[:20]
	}
	orgs := make([]string, 0, len(f.Organizations))
	for _, o := range f.Organizations {
		orgs = append(orgs, o.Name)
	}
	hireable := "No/Unknown"
	if p.Hireable {
		hireable = "Yes"
	}

	return strings.Join([]string{
		"# GitHub User Profile Data",
		"",
		"## Profile Information",
		"- **Name**: " + orDefault(p.Name, "Not provided"),
		"- **Username**: @" + p.Login,
		"- **Bio**: " + orDefault(p.Bio, "No bio"),
		"- **Company**: " + orDefault(p.Company, "Not provided"),
		"- **Location**: " + orDefault(p.Location, "Not provided"),
		"- **Website**: " + orDefault(p.Blog, "Not provided"),
		"- **Email**: " + orDefault(p.Email, "Not public"),
		"- **Twitter**: " + orDefault(p.TwitterUsername, "Not provided"),
		"- **Hireable**: " + hireable,
		"- **Account Created**: " + p.CreatedAt,
		"- **Last Updated**: " + p.UpdatedAt,
		"",
		"## Social Stats",
		fmt.Sprintf("- **Followers**: %d", p.Followers),
		fmt.Sprintf("- **Following**: %d", p.Following),
		fmt.Sprintf("- **Public Repos**: %d", p.PublicRepos),
		fmt.Sprintf("- **Public Gists**: %d", p.PublicGists),
		"",
		"## Contribution Stats",
		fmt.Sprintf("- **Total Stars**: %d", f.Stats.TotalStars),
		fmt.Sprintf("- **Total Forks**: %d", f.Stats.TotalForks),
		fmt.Sprintf("- **Total Open Issues**: %d", f.Stats.TotalIssues),
		"",
		"## Languages Used (by code volume)",
		orDefault(strings.Join(langs, ", "), "No languages detected"),
		"",
		"## Topics/Skills",
		orDefault(strings.Join(topics, ", "), "No topics"),
		"",
		"## Organizations",
		orDefault(strings.Join(orgs, ", "), "No public organizations"),
		"",
		"---",
		"",
		"Analysis Guidelines:",
		"- Be direct and specific, avoid generic statements.",
		"- Support every claim with evidence from the data.",
		"- Use bullet points, not paragraphs.",
		"- Focus on insights that matter for hiring or collaboration.",
		"",
		"Output Format:",
		"# 🎯 Developer Profile: @" + p.Login,
		"## ⚡ Quick Summary",
		"> One line capturing their developer identity.",
		"## 🛠️ Tech Stack Mastery",
		"| Skill | Proficiency | Evidence |",
		"|-------|-------------|----------|",
		"(Top 5 skills only, with concrete repository evidence)",
		"## 📊 Developer DNA",
		"- **Archetype**",
		"- **Experience Signal**: Junior/Mid/Senior/Staff",
		"- **Activity Pattern**: Active/Moderate/Dormant",
		"- **Code Quality Indicators**",
		"",
		"Rules:",
		"- Maximum 200 words.",
		"- Skip sections when the data is insufficient; never fabricate.",
	}, "\n")
}

func sortedLanguages(m map[string]int) []domain.LanguageShare {
	out := make([]domain.LanguageShare, 0, len(m))
	for name, b := range m {
		out = append(out, domain.LanguageShare{Name: name, Bytes: b})
	}
	domain.SortLanguages(out)
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "✅ Yes"
	}
	return "❌ No"
}

func listSuffix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) > 5 {
		items = items[:5]
	}
	return " (" + strings.Join(items, ", ") + ")"
}
