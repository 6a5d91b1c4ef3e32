// Package app wires configuration into the services shared by every
// entrypoint: secrets, the session store, the LLM providers, the GitHub
// client and the turn service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"router-agent/internal/classifier"
	"router-agent/internal/config"
	"router-agent/internal/domain"
	"router-agent/internal/integrations/gemini"
	"router-agent/internal/integrations/github"
	"router-agent/internal/integrations/openai"
	"router-agent/internal/integrations/paramstore"
	"router-agent/internal/integrations/telegram"
	"router-agent/internal/repository"
	"router-agent/internal/specialist"
	"router-agent/internal/usecase"
)

// Store is a session store that owns resources.
type Store interface {
	usecase.SessionStore
	Close() error
}

// LLM is a text generation provider.
type LLM interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
	ChatJSON(ctx context.Context, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error)
	Ready(ctx context.Context) error
}

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Secrets paramstore.Getter
	Store   Store
	Turns   *usecase.TurnService

	llm    LLM
	awsCfg *aws.Config
}

// New builds every shared service. Credentials are not resolved here; call
// Ready before accepting turns.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	secrets, err := a.secrets(ctx)
	if err != nil {
		return nil, err
	}
	a.Secrets = secrets

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store

	turns, err := a.buildTurns(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.Turns = turns
	return a, nil
}

func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

func (a *App) secrets(ctx context.Context) (paramstore.Getter, error) {
	if a.Config.ParamPrefix == "" {
		return paramstore.DefaultEnv(), nil
	}
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	c, err := paramstore.New(awsssm.NewFromConfig(awsCfg), a.Config.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	return c, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	sc := a.Config.Store
	switch sc.Backend {
	case config.BackendMemory:
		return repository.NewMemory(), nil
	case config.BackendSQLite:
		return repository.NewSQLite(ctx, sc.SQLitePath)
	case config.BackendPostgres:
		return repository.NewPostgres(ctx, sc.DatabaseURL)
	case config.BackendDynamoDB:
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewDynamo(awsdynamodb.NewFromConfig(awsCfg), sc.Table)
	}
	return nil, fmt.Errorf("app: unknown store backend %q", sc.Backend)
}

// NewLLM builds the configured provider for model.
func NewLLM(cfg *config.Config, secrets paramstore.Getter, model string) (LLM, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		return gemini.NewClient(secrets, model)
	case config.ProviderOpenAI:
		return openai.NewClient(secrets, model, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	return nil, fmt.Errorf("app: unknown llm provider %q", cfg.LLM.Provider)
}

func (a *App) buildTurns(ctx context.Context) (*usecase.TurnService, error) {
	cfg := a.Config
	llm, err := NewLLM(cfg, a.Secrets, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	a.llm = llm
	classifierLLM := llm
	if cfg.LLM.ClassifierModel != cfg.LLM.Model {
		if classifierLLM, err = NewLLM(cfg, a.Secrets, cfg.LLM.ClassifierModel); err != nil {
			return nil, err
		}
	}

	githubToken, err := paramstore.Token(ctx, a.Secrets, paramstore.GitHubToken)
	if err != nil {
		a.Logger.Warn("no GitHub token configured, using unauthenticated requests", "err", err)
		githubToken = ""
	}
	host, err := github.New(githubToken, github.WithBaseURL(cfg.GitHub.BaseURL), github.WithLogger(a.Logger))
	if err != nil {
		return nil, err
	}

	cls, err := classifier.New(classifierLLM, a.Logger)
	if err != nil {
		return nil, err
	}
	general, err := specialist.NewGeneral(llm, cfg.MaxHistory)
	if err != nil {
		return nil, err
	}
	repo, err := specialist.NewRepository(host, llm, a.Logger)
	if err != nil {
		return nil, err
	}
	profile, err := specialist.NewProfile(host, llm, a.Logger)
	if err != nil {
		return nil, err
	}

	return usecase.NewTurnService(cls, a.Store, usecase.Specialists{
		General:    general,
		Repository: repo,
		Profile:    profile,
	}, a.Logger, cfg.MaxMessageLength)
}

// Ready checks the LLM credentials (and any extra secrets) so that a
// misconfigured deployment fails at startup.
func (a *App) Ready(ctx context.Context, extra ...string) error {
	names := append([]string{a.Config.LLMSecret()}, extra...)
	if err := config.RequireSecrets(ctx, a.Secrets, names...); err != nil {
		return err
	}
	return a.llm.Ready(ctx)
}

// Telegram builds the bot API client from the configured token.
func (a *App) Telegram(ctx context.Context) (*telegram.Client, error) {
	token, err := paramstore.Token(ctx, a.Secrets, paramstore.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("app: telegram token: %w", err)
	}
	return telegram.New(token)
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
