package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"router-agent/internal/domain"
	"router-agent/internal/router"
)

const defaultMaxMessage = 4000

// Phase is a step of the per-turn state machine. Phases are only logged.
type Phase string

const (
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseClassifying   Phase = "classifying"
	PhaseRouting       Phase = "routing"
	PhaseDispatching   Phase = "dispatching"
	PhasePersisting    Phase = "persisting"
)

type Classifier interface {
	Classify(ctx context.Context, message string) domain.ClassificationResult
}

type Responder interface {
	Respond(ctx context.Context, state domain.ConversationState) (string, error)
}

// SessionStore persists one ConversationState per session id. Load and
// Stats report an unknown session with found=false.
type SessionStore interface {
	Save(ctx context.Context, sessionID string, state domain.ConversationState) error
	Load(ctx context.Context, sessionID string) (domain.ConversationState, bool, error)
	Clear(ctx context.Context, sessionID string) error
	Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error)
}

// Specialists holds one responder per routing target.
type Specialists struct {
	General    Responder
	Repository Responder
	Profile    Responder
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type TurnService struct {
	classifier    Classifier
	store         SessionStore
	specialists   Specialists
	logger        *slog.Logger
	maxMessageLen int
	locks         sessionLocks
}

type TurnInput struct {
	SessionID string
	Text      string
}

type TurnOutput struct {
	Reply      string
	Category   domain.Category
	Specialist router.SpecialistID
	State      domain.ConversationState
	// Persisted is false when the reply was produced but the session could
	// not be saved.
	Persisted bool
	// Fallback is set when Reply explains a text generation failure instead
	// of answering.
	Fallback ErrorCode
}

func NewTurnService(c Classifier, s SessionStore, sp Specialists, logger *slog.Logger, maxMessageLen int) (*TurnService, error) {
	if c == nil {
		return nil, errors.New("usecase: classifier must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if sp.General == nil || sp.Repository == nil || sp.Profile == nil {
		return nil, errors.New("usecase: all specialists must be set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	return &TurnService{
		classifier:    c,
		store:         s,
		specialists:   sp,
		logger:        logger,
		maxMessageLen: maxMessageLen,
		locks:         sessionLocks{m: map[string]*sessionLock{}},
	}, nil
}

// Process runs one turn: load, append the user message, classify, route,
// dispatch, append exactly one assistant message and save.
//
// When saving fails the returned output is still complete and the error is
// an INTERNAL_ERROR; callers may deliver the reply anyway.
func (s *TurnService) Process(ctx context.Context, in TurnInput) (TurnOutput, error) {
	sessionID, err := validSessionID(in.SessionID)
	if err != nil {
		return TurnOutput{}, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(text) > s.maxMessageLen {
		return TurnOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()
	log := s.logger.With("session_id", sessionID)

	state, _, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "session_load_error", err)
	}
	state.AppendMessage(domain.NewMessage(domain.RoleUser, text))

	log.Debug("turn phase", "phase", PhaseClassifying)
	state.ApplyClassification(s.classifier.Classify(ctx, text))

	log.Debug("turn phase", "phase", PhaseRouting, "category", state.Category)
	target := router.Route(state.Category)

	log.Debug("turn phase", "phase", PhaseDispatching, "specialist", target)
	var fallback ErrorCode
	reply, err := s.responder(target).Respond(ctx, state.Clone())
	if err != nil {
		fallback = fallbackCode(err)
		log.Warn("specialist failed", "specialist", target, "err", err)
		reply = failureReply(fallback)
	}
	if strings.TrimSpace(reply) == "" {
		reply = emptyReply
	}
	state.AppendMessage(domain.NewMessage(domain.RoleAssistant, reply))

	log.Debug("turn phase", "phase", PhasePersisting)
	out := TurnOutput{
		Reply:      reply,
		Category:   state.Category,
		Specialist: target,
		State:      state.Clone(),
		Persisted:  true,
		Fallback:   fallback,
	}
	if err := s.store.Save(ctx, sessionID, state); err != nil {
		log.Error("failed to save session", "err", err)
		out.Persisted = false
		return out, newError(ErrorInternal, "session_save_error", err)
	}

	log.Debug("turn phase", "phase", PhaseAwaitingInput)
	return out, nil
}

// Clear forgets everything stored for the session.
func (s *TurnService) Clear(ctx context.Context, sessionID string) error {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return newError(ErrorInternal, "session_clear_error", err)
	}
	return nil
}

func (s *TurnService) Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return domain.SessionStats{}, false, err
	}
	st, found, err := s.store.Stats(ctx, sessionID)
	if err != nil {
		return domain.SessionStats{}, false, newError(ErrorInternal, "session_stats_error", err)
	}
	return st, found, nil
}

// History returns the stored message log in turn order.
func (s *TurnService) History(ctx context.Context, sessionID string) ([]domain.Message, bool, error) {
	sessionID, err := validSessionID(sessionID)
	if err != nil {
		return nil, false, err
	}
	state, found, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, false, newError(ErrorInternal, "session_load_error", err)
	}
	return state.Messages, found, nil
}

func (s *TurnService) responder(id router.SpecialistID) Responder {
	switch id {
	case router.RepoSpecialist:
		return s.specialists.Repository
	case router.ProfileSpecialist:
		return s.specialists.Profile
	default:
		return s.specialists.General
	}
}

func validSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", newError(ErrorInvalidInput, "empty_session_id", nil)
	}
	return id, nil
}

const (
	emptyReply       = "I don't have an answer for that. Could you rephrase your question?"
	rateLimitedReply = "⚠️ I'm receiving too many requests right now. Please wait a minute and try again."
	upstreamReply    = "⚠️ I couldn't generate a response right now because the language model is unavailable. Please try again shortly."
)

func fallbackCode(err error) ErrorCode {
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return ErrorRateLimited
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return ErrorRateLimited
	}
	return ErrorUpstream
}

func failureReply(code ErrorCode) string {
	if code == ErrorRateLimited {
		return rateLimitedReply
	}
	return upstreamReply
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// NewSessionID returns a fresh random session id for front-ends that do not
// have a natural one.
func NewSessionID() string {
	return newUUID()
}

var newUUID = func() string {
	return uuid.NewString()
}
