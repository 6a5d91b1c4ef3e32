// Package extract pulls GitHub identifiers out of free text.
//
// Rules are tried in a fixed order and the first one that matches wins:
// code-host URLs, @mentions, natural-language templates, then a stop-word
// filtered token scan. An empty result is a normal outcome.
package extract

import (
	"regexp"
	"strings"
)

const (
	ownerPattern = `[A-Za-z0-9][A-Za-z0-9-]*`
	repoPattern  = `[A-Za-z0-9_.][A-Za-z0-9_.-]*`
)

var (
	urlRe     = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?\bgithub\.com/(` + ownerPattern + `)(?:/(` + repoPattern + `))?`)
	mentionRe = regexp.MustCompile(`(?:^|[^\w/.@])@(` + ownerPattern + `)(?:/(` + repoPattern + `))?`)

	repoByRe    = regexp.MustCompile(`(?i)\brepo(?:sitory)?\s+(?:named\s+|called\s+)?@?(` + repoPattern + `)\s+(?:by|from)\s+@?(` + ownerPattern + `)`)
	ownerRepoRe = regexp.MustCompile(`(?i)\bowner(?:\s+is\s+|\s+of\s+|\s*:\s*|\s+)@?(` + ownerPattern + `)\b.*?\brepo(?:sitory)?(?:\s+name\s+is\s+|\s+named\s+|\s+name\s*:?\s*|\s+is\s+|\s*:\s*)@?(` + repoPattern + `)`)
	ownerIsRe   = regexp.MustCompile(`(?i)\bowner(?:\s+is\s+|\s+of\s+|\s*:\s*|\s+)@?(` + ownerPattern + `)`)
	repoOfRe    = regexp.MustCompile(`(?i)\brepo(?:sitory)?\s+of\s+@?(` + ownerPattern + `)/(` + repoPattern + `)`)
	userRe      = regexp.MustCompile(`(?i)\b(?:username|user|profile)(?:\s+(?:name|account|id|of|for|is))*\s+@?(` + ownerPattern + `)`)
	slugRe      = regexp.MustCompile(`(?:^|[\s("'])@?(` + ownerPattern + `)/(` + repoPattern + `)`)

	identRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a an the and or but if of in on at to for from with by about into is are was be been
		can could would should will may might must do does did you your me my i we our us
		his her their its it this that these those what which who how why when where
		get show tell give provide fetch pull find search look check analyze analyse analysis
		review rate grade evaluate score assess see summarize describe explain please help
		github git repo repos repository repositories project code codebase source
		user username profile account owner info information details data stats statistics
		name named called id url link page want need like know let some quality hey hi hello
		developer dev person someone`) {
		stopWords[w] = struct{}{}
	}
}

// Owner extracts a single user or owner identifier.
func Owner(text string) string {
	if m := urlRe.FindStringSubmatch(text); m != nil {
		return cleanToken(m[1])
	}
	if m := mentionRe.FindStringSubmatch(text); m != nil {
		return cleanToken(m[1])
	}
	if m := repoByRe.FindStringSubmatch(text); m != nil && usable(m[2]) {
		return cleanToken(m[2])
	}
	if owner := firstCapture(ownerIsRe, text); owner != "" {
		return owner
	}
	if m := repoOfRe.FindStringSubmatch(text); m != nil && usable(m[1]) {
		return cleanToken(m[1])
	}
	if owner := firstCapture(userRe, text); owner != "" {
		return owner
	}
	if owner, _, ok := firstSlug(text); ok {
		return owner
	}
	toks := candidateTokens(text)
	if len(toks) == 0 {
		return ""
	}
	return toks[len(toks)-1]
}

// OwnerRepo extracts an owner and repository pair. Either value may be
// empty when only one of them could be identified.
func OwnerRepo(text string) (owner, repo string) {
	if m := urlRe.FindStringSubmatch(text); m != nil {
		return cleanToken(m[1]), cleanRepo(m[2])
	}
	if m := mentionRe.FindStringSubmatch(text); m != nil {
		return cleanToken(m[1]), cleanRepo(m[2])
	}
	if m := repoByRe.FindStringSubmatch(text); m != nil && usable(m[1]) && usable(m[2]) {
		return cleanToken(m[2]), cleanRepo(m[1])
	}
	if m := ownerRepoRe.FindStringSubmatch(text); m != nil && usable(m[1]) && usable(m[2]) {
		return cleanToken(m[1]), cleanRepo(m[2])
	}
	if m := repoOfRe.FindStringSubmatch(text); m != nil {
		return cleanToken(m[1]), cleanRepo(m[2])
	}
	if owner := firstCapture(ownerIsRe, text); owner != "" {
		return owner, loneRepo(text, owner)
	}
	if owner := firstCapture(userRe, text); owner != "" {
		return owner, ""
	}
	if o, r, ok := firstSlug(text); ok {
		return o, r
	}
	toks := candidateTokens(text)
	switch len(toks) {
	case 0:
		return "", ""
	case 1:
		return "", toks[0]
	default:
		return toks[len(toks)-2], toks[len(toks)-1]
	}
}

// URL reports the owner and repository of the first code-host URL in text.
// repo is empty for a profile URL. ok is false when text holds no such URL.
func URL(text string) (owner, repo string, ok bool) {
	m := urlRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return cleanToken(m[1]), cleanRepo(m[2]), true
}

// Clean strips a leading @ and trailing punctuation from an identifier.
func Clean(s string) string {
	return cleanToken(s)
}

func firstSlug(text string) (owner, repo string, ok bool) {
	for _, m := range slugRe.FindAllStringSubmatch(text, -1) {
		if usable(m[1]) && usable(m[2]) {
			return cleanToken(m[1]), cleanRepo(m[2]), true
		}
	}
	return "", "", false
}

// firstCapture returns the first group-1 capture of re that is not a stop word.
func firstCapture(re *regexp.Regexp, text string) string {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if usable(m[1]) {
			return cleanToken(m[1])
		}
	}
	return ""
}

// loneRepo returns the only candidate token other than owner, if there is one.
func loneRepo(text, owner string) string {
	var rest []string
	for _, tok := range candidateTokens(text) {
		if !strings.EqualFold(tok, owner) {
			rest = append(rest, tok)
		}
	}
	if len(rest) != 1 {
		return ""
	}
	return cleanRepo(rest[0])
}

func candidateTokens(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		tok := cleanToken(f)
		if !identRe.MatchString(tok) || isStopWord(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func usable(tok string) bool {
	tok = cleanToken(tok)
	return tok != "" && !isStopWord(tok)
}

func isStopWord(tok string) bool {
	_, ok := stopWords[strings.ToLower(tok)]
	return ok
}

func cleanToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`()[]<>")
	s = strings.TrimLeft(s, "@")
	return strings.TrimRight(s, ".,!?;:")
}

func cleanRepo(s string) string {
	s = cleanToken(s)
	s = strings.TrimSuffix(s, ".git")
	return strings.TrimRight(s, ".,!?;:")
}
