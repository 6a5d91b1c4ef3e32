package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"general":             CategoryGeneral,
		" Repo_Analysis ":     CategoryRepoAnalysis,
		"profile_analysis":    CategoryProfileAnalysis,
		"repository_analysis": CategoryRepoAnalysis,
		"github":              CategoryRepoAnalysis,
		"github_user":         CategoryProfileAnalysis,
		"logical":             CategoryGeneral,
	}
	for in, want := range cases {
		got, ok := ParseCategory(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	_, ok := ParseCategory("weather")
	require.False(t, ok)
	_, ok = ParseCategory("")
	require.False(t, ok)
}

func TestApplyClassificationOverwritesEverything(t *testing.T) {
	s := ConversationState{Category: CategoryRepoAnalysis, Owner: "octocat", Repo: "hello"}
	s.ApplyClassification(ClassificationResult{Category: CategoryGeneral})

	require.Equal(t, CategoryGeneral, s.Category)
	require.Empty(t, s.Owner)
	require.Empty(t, s.Repo)
}

func TestStatsAndLastUserMessage(t *testing.T) {
	var s ConversationState
	_, ok := s.LastUserMessage()
	require.False(t, ok)

	s.AppendMessage(NewMessage(RoleUser, "hi"))
	s.AppendMessage(NewMessage(RoleAssistant, "hello"))
	s.AppendMessage(NewMessage(RoleUser, "again"))

	last, ok := s.LastUserMessage()
	require.True(t, ok)
	require.Equal(t, "again", last.Content)
	require.Equal(t, SessionStats{Total: 3, UserCount: 2, AssistantCount: 1}, s.Stats())

	s.Reset()
	require.Equal(t, SessionStats{}, s.Stats())
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := ConversationState{}
	s.AppendMessage(NewMessage(RoleUser, "one"))

	c := s.Clone()
	c.AppendMessage(NewMessage(RoleAssistant, "two"))
	c.Messages[0].Content = "changed"

	require.Len(t, s.Messages, 1)
	require.Equal(t, "one", s.Messages[0].Content)
}

func TestChatMessagesKeepsTail(t *testing.T) {
	msgs := []Message{
		NewMessage(RoleUser, "a"),
		NewMessage(RoleAssistant, "b"),
		NewMessage(RoleUser, "c"),
	}
	require.Equal(t, []ChatMessage{{Role: "assistant", Content: "b"}, {Role: "user", Content: "c"}}, ChatMessages(msgs, 2))
	require.Len(t, ChatMessages(msgs, 0), 3)
}

func TestSortLanguages(t *testing.T) {
	l := []LanguageShare{{Name: "Ruby", Bytes: 5}, {Name: "Go", Bytes: 50}, {Name: "C", Bytes: 5}}
	SortLanguages(l)
	require.Equal(t, []LanguageShare{{Name: "Go", Bytes: 50}, {Name: "C", Bytes: 5}, {Name: "Ruby", Bytes: 5}}, l)
}

func TestCategoryPresentation(t *testing.T) {
	require.Equal(t, "👤 User Analysis", CategoryProfileAnalysis.Emoji()+" "+CategoryProfileAnalysis.Label())
	require.Equal(t, "🔍 Repo Analysis", CategoryRepoAnalysis.Emoji()+" "+CategoryRepoAnalysis.Label())
	require.Equal(t, "🧠 Logical", CategoryGeneral.Emoji()+" "+CategoryGeneral.Label())
	require.Equal(t, "Logical", Category("").Label())
}
