package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"router-agent/internal/domain"
	"router-agent/internal/integrations/gemini"
	"router-agent/internal/integrations/openai"
	"router-agent/internal/router"
)

type mockClassifier struct {
	result domain.ClassificationResult
	seen   []string
}

func (m *mockClassifier) Classify(_ context.Context, message string) domain.ClassificationResult {
	m.seen = append(m.seen, message)
	return m.result
}

type mockResponder struct {
	reply string
	err   error
	calls int
	state domain.ConversationState
}

func (m *mockResponder) Respond(_ context.Context, state domain.ConversationState) (string, error) {
	m.calls++
	m.state = state
	return m.reply, m.err
}

type mockStore struct {
	mu       sync.Mutex
	sessions map[string]domain.ConversationState
	loadErr  error
	saveErr  error
	clearErr error
	saves    int
}

func newMockStore() *mockStore {
	return &mockStore{sessions: map[string]domain.ConversationState{}}
}

func (m *mockStore) Save(_ context.Context, id string, state domain.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[id] = state.Clone()
	return nil
}

func (m *mockStore) Load(_ context.Context, id string) (domain.ConversationState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.ConversationState{}, false, m.loadErr
	}
	s, ok := m.sessions[id]
	return s.Clone(), ok, nil
}

func (m *mockStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.sessions, id)
	return nil
}

func (m *mockStore) Stats(_ context.Context, id string) (domain.SessionStats, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s.Stats(), ok, nil
}

type fixture struct {
	classifier *mockClassifier
	store      *mockStore
	general    *mockResponder
	repo       *mockResponder
	profile    *mockResponder
	svc        *TurnService
}

func newFixture(t *testing.T, result domain.ClassificationResult) *fixture {
	t.Helper()
	f := &fixture{
		classifier: &mockClassifier{result: result},
		store:      newMockStore(),
		general:    &mockResponder{reply: "general reply"},
		repo:       &mockResponder{reply: "repo reply"},
		profile:    &mockResponder{reply: "profile reply"},
	}
	svc, err := NewTurnService(f.classifier, f.store, Specialists{
		General:    f.general,
		Repository: f.repo,
		Profile:    f.profile,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), 50)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func expectTurnError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

var ignoreTimestamps = cmpopts.IgnoreFields(domain.Message{}, "Timestamp")

func TestNewTurnService_ValidatesDependencies(t *testing.T) {
	sp := Specialists{General: &mockResponder{}, Repository: &mockResponder{}, Profile: &mockResponder{}}

	_, err := NewTurnService(nil, newMockStore(), sp, nil, 0)
	require.Error(t, err)

	_, err = NewTurnService(&mockClassifier{}, nil, sp, nil, 0)
	require.Error(t, err)

	_, err = NewTurnService(&mockClassifier{}, newMockStore(), Specialists{General: &mockResponder{}}, nil, 0)
	require.Error(t, err)

	svc, err := NewTurnService(&mockClassifier{}, newMockStore(), sp, nil, 0)
	require.NoError(t, err)
	require.Equal(t, defaultMaxMessage, svc.maxMessageLen)
}

func TestProcess_RoutesByCategory(t *testing.T) {
	cases := []struct {
		name       string
		result     domain.ClassificationResult
		specialist router.SpecialistID
		reply      string
	}{
		{
			name:       "repository",
			result:     domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Owner: "torvalds", Repo: "linux"},
			specialist: router.RepoSpecialist,
			reply:      "repo reply",
		},
		{
			name:       "profile",
			result:     domain.ClassificationResult{Category: domain.CategoryProfileAnalysis, Owner: "octocat"},
			specialist: router.ProfileSpecialist,
			reply:      "profile reply",
		},
		{
			name:       "general",
			result:     domain.ClassificationResult{Category: domain.CategoryGeneral},
			specialist: router.GeneralSpecialist,
			reply:      "general reply",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.result)

			out, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "  hello there  "})
			require.NoError(t, err)
			require.Equal(t, tc.specialist, out.Specialist)
			require.Equal(t, tc.result.Category, out.Category)
			require.Equal(t, tc.reply, out.Reply)
			require.True(t, out.Persisted)
			require.Empty(t, out.Fallback)
			require.Equal(t, []string{"hello there"}, f.classifier.seen)

			want := domain.ConversationState{
				Messages: []domain.Message{
					{Role: domain.RoleUser, Content: "hello there"},
					{Role: domain.RoleAssistant, Content: tc.reply},
				},
				Category: tc.result.Category,
				Owner:    tc.result.Owner,
				Repo:     tc.result.Repo,
			}
			if diff := cmp.Diff(want, out.State, ignoreTimestamps); diff != "" {
				t.Fatalf("state mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want, f.store.sessions["s1"], ignoreTimestamps); diff != "" {
				t.Fatalf("saved state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcess_SpecialistSeesClassifiedState(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Owner: "mohitjoer", Repo: "Freelance-web"})

	_, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "repo Freelance-web by mohitjoer"})
	require.NoError(t, err)
	require.Equal(t, 1, f.repo.calls)
	require.Zero(t, f.general.calls)
	require.Equal(t, "mohitjoer", f.repo.state.Owner)
	require.Equal(t, "Freelance-web", f.repo.state.Repo)
	last, ok := f.repo.state.LastUserMessage()
	require.True(t, ok)
	require.Equal(t, "repo Freelance-web by mohitjoer", last.Content)
	require.Len(t, f.repo.state.Messages, 1)
}

func TestProcess_AppendsToExistingSession(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})
	f.store.sessions["s1"] = domain.ConversationState{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "https://github.com/octocat", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Role: domain.RoleAssistant, Content: "profile", Timestamp: time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)},
		},
		Category: domain.CategoryProfileAnalysis,
		Owner:    "octocat",
	}

	out, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "What is a B-tree?"})
	require.NoError(t, err)
	require.Len(t, out.State.Messages, 4)
	require.Equal(t, "https://github.com/octocat", out.State.Messages[0].Content)
	require.Equal(t, "What is a B-tree?", out.State.Messages[2].Content)
	require.Equal(t, domain.RoleAssistant, out.State.Messages[3].Role)
	// routing metadata describes the latest user turn only
	require.Equal(t, domain.CategoryGeneral, out.State.Category)
	require.Empty(t, out.State.Owner)
}

func TestProcess_ValidationErrors(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})

	_, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "   "})
	expectTurnError(t, err, ErrorInvalidInput, "empty_message")

	_, err = f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: strings.Repeat("é", 51)})
	expectTurnError(t, err, ErrorInvalidInput, "message_too_long")

	_, err = f.svc.Process(context.Background(), TurnInput{SessionID: " ", Text: "hi"})
	expectTurnError(t, err, ErrorInvalidInput, "empty_session_id")

	require.Zero(t, f.store.saves)
	require.Empty(t, f.classifier.seen)
}

func TestProcess_LengthLimitCountsCharacters(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})
	_, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: strings.Repeat("é", 50)})
	require.NoError(t, err)
}

func TestProcess_SpecialistFailureBecomesReply(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		fallback ErrorCode
		reply    string
	}{
		{name: "openai rate limited", err: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}, fallback: ErrorRateLimited, reply: rateLimitedReply},
		{name: "gemini rate limited", err: fmt.Errorf("wrapped: %w", &gemini.StatusError{Code: http.StatusTooManyRequests, Err: errors.New("quota")}), fallback: ErrorRateLimited, reply: rateLimitedReply},
		{name: "code host rate limited", err: domain.ErrRateLimited, fallback: ErrorRateLimited, reply: rateLimitedReply},
		{name: "server error", err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}, fallback: ErrorUpstream, reply: upstreamReply},
		{name: "network", err: errors.New("dial tcp: timeout"), fallback: ErrorUpstream, reply: upstreamReply},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})
			f.general.err = tc.err

			out, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "What is a B-tree?"})
			require.NoError(t, err)
			require.Equal(t, tc.fallback, out.Fallback)
			require.Equal(t, tc.reply, out.Reply)
			require.True(t, out.Persisted)

			saved := f.store.sessions["s1"]
			require.Len(t, saved.Messages, 2)
			require.Equal(t, tc.reply, saved.Messages[1].Content)
		})
	}
}

func TestProcess_EmptyReplyIsReplaced(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})
	f.general.reply = "  "

	out, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, emptyReply, out.Reply)
}

func TestProcess_StoreErrors(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})
	f.store.loadErr = errors.New("disk I/O error")
	_, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "hi"})
	expectTurnError(t, err, ErrorInternal, "session_load_error")
	require.Zero(t, f.general.calls)

	f = newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})
	f.store.saveErr = errors.New("write failed")
	out, err := f.svc.Process(context.Background(), TurnInput{SessionID: "s1", Text: "hi"})
	expectTurnError(t, err, ErrorInternal, "session_save_error")
	require.False(t, out.Persisted)
	require.Equal(t, "general reply", out.Reply)
	require.Len(t, out.State.Messages, 2)
}

func TestProcess_SerializesSameSession(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})

	const turns = 20
	errs := make(chan error, turns)
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Process(context.Background(), TurnInput{SessionID: "shared", Text: fmt.Sprintf("message %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	saved := f.store.sessions["shared"]
	require.Len(t, saved.Messages, 2*turns)
	for i := 0; i < len(saved.Messages); i += 2 {
		require.Equal(t, domain.RoleUser, saved.Messages[i].Role)
		require.Equal(t, domain.RoleAssistant, saved.Messages[i+1].Role)
	}
	require.Empty(t, f.svc.locks.m)
}

func TestClearStatsHistory(t *testing.T) {
	f := newFixture(t, domain.ClassificationResult{Category: domain.CategoryGeneral})
	ctx := context.Background()

	_, found, err := f.svc.Stats(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)

	_, err = f.svc.Process(ctx, TurnInput{SessionID: "s1", Text: "hi"})
	require.NoError(t, err)

	st, found, err := f.svc.Stats(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.SessionStats{Total: 2, UserCount: 1, AssistantCount: 1}, st)

	msgs, found, err := f.svc.History(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, msgs, 2)

	require.NoError(t, f.svc.Clear(ctx, "s1"))
	_, found, err = f.svc.History(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)

	f.store.clearErr = errors.New("boom")
	expectTurnError(t, f.svc.Clear(ctx, "s1"), ErrorInternal, "session_clear_error")
	expectTurnError(t, f.svc.Clear(ctx, ""), ErrorInvalidInput, "empty_session_id")
}

func TestNewSessionID(t *testing.T) {
	orig := newUUID
	t.Cleanup(func() { newUUID = orig })
	newUUID = func() string { return "fixed" }
	require.Equal(t, "fixed", NewSessionID())
}
