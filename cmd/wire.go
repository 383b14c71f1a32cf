package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	authadapter "github.com/Gribbirg/deadline-mate/internal/adapters/auth"
	"github.com/Gribbirg/deadline-mate/internal/adapters/navigation"
	"github.com/Gribbirg/deadline-mate/internal/adapters/render/deadlines"
	tomlrepo "github.com/Gribbirg/deadline-mate/internal/adapters/repo/toml"
	chainstore "github.com/Gribbirg/deadline-mate/internal/adapters/secrets/chain"
	filestore "github.com/Gribbirg/deadline-mate/internal/adapters/secrets/file"
	passstore "github.com/Gribbirg/deadline-mate/internal/adapters/secrets/pass"
	"github.com/Gribbirg/deadline-mate/internal/application"
	"github.com/Gribbirg/deadline-mate/internal/config"
	"github.com/Gribbirg/deadline-mate/internal/domain"
	"github.com/Gribbirg/deadline-mate/internal/pkg/logger"
	"github.com/Gribbirg/deadline-mate/internal/ports"
	"github.com/Gribbirg/deadline-mate/internal/version"
)

type app struct {
	settings config.Settings
	baseURL  string
	output   string
	log      *slog.Logger
	closeLog func() error
	// noSpinner is bound to --no-spinner before wiring runs.
	noSpinner bool

	session          *application.SessionManager
	service          *application.Service
	profiles         ports.ProfileRepository
	dashboardRender  func(application.Dashboard, deadlines.RenderOptions) (string, error)
	now              func() time.Time
	stdinIsTerminal  func() bool
	stdoutIsTerminal func(cmd *cobra.Command) bool
}

func (a *app) wire(cmd *cobra.Command, opts *rootOptions) error {
	output, err := parseOutput(opts.output)
	if err != nil {
		return err
	}
	a.output = output

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	v := config.New(homeDir)
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	if err := config.Read(v, opts.configFile); err != nil {
		return err
	}
	settings, err := config.Resolve(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.settings = settings

	log, closeLog, err := logger.Setup(logger.Config{
		Level:   logger.ParseLevel(settings.LogLevel),
		LogFile: settings.LogFile,
		Format:  settings.LogFormat,
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.log = logger.WithCommand(log, cmd.CommandPath())
	a.closeLog = closeLog

	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return fmt.Errorf("wire profile repository: %w", err)
	}
	a.profiles = repo
	a.baseURL = a.resolveBaseURL(cmd, repo)

	store, err := newSecretStore(settings)
	if err != nil {
		return fmt.Errorf("wire credential store: %w", err)
	}

	httpClient := &http.Client{}
	userAgent := version.UserAgent()

	session, err := application.NewSessionManager(application.SessionConfig{
		BaseURL:        a.baseURL,
		Profile:        settings.Profile,
		QueueTimeout:   settings.QueueTimeout,
		RefreshTimeout: settings.RefreshTimeout,
		RequestTimeout: settings.APITimeout,
		UserAgent:      userAgent,
	}, application.SessionDeps{
		HTTP: httpClient,
		Tokens: authadapter.TokenClient{
			API:            authadapter.API{BaseURL: a.baseURL},
			HTTPClient:     httpClient,
			RequestTimeout: settings.APITimeout,
			UserAgent:      userAgent,
		},
		Store:     store,
		Profiles:  repo,
		Navigator: navigation.NewTerminal(cmd.ErrOrStderr(), settings.Profile, a.log),
		Clock:     ports.SystemClock{},
		Logger:    a.log,
	})
	if err != nil {
		return fmt.Errorf("wire session: %w", err)
	}
	if err := session.Restore(cmd.Context()); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	a.session = session
	a.service = application.NewService(session, ports.SystemClock{})
	a.dashboardRender = deadlines.Render
	a.now = time.Now
	a.stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	a.stdoutIsTerminal = func(cmd *cobra.Command) bool {
		return isTerminalWriter(cmd.OutOrStdout())
	}

	a.log.Debug("session wired", "api", a.baseURL, "authenticated", session.IsAuthenticated())
	return nil
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	closeLog := a.closeLog
	a.closeLog = nil
	return closeLog()
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		config.KeyProfile:  "profile",
		config.KeyAPIURL:   "api-url",
		config.KeyLogLevel: "log-level",
	}
	for key, name := range bindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// resolveBaseURL prefers an explicitly configured URL, then the URL the
// profile last logged in against, then the default.
func (a *app) resolveBaseURL(cmd *cobra.Command, repo ports.ProfileRepository) string {
	if a.settings.APIURLExplicit {
		return a.settings.APIURL
	}

	profile, err := repo.GetByName(cmd.Context(), a.settings.Profile)
	switch {
	case err == nil && profile.BaseURL != "":
		return profile.BaseURL
	case err != nil && !errors.Is(err, domain.ErrProfileNotFound):
		a.log.Warn("load profile", "error", err)
	}
	return a.settings.APIURL
}

func newSecretStore(settings config.Settings) (ports.SecretStore, error) {
	switch settings.SecretsBackend {
	case config.BackendFile:
		return filestore.NewStore(settings.SecretsDir), nil
	case config.BackendPass:
		return passstore.NewStore(), nil
	default:
		return chainstore.NewPassFirstWithFileFallback(settings.SecretsDir)
	}
}

// requireSession fails early with a hint when nobody is logged in.
func (a *app) requireSession() error {
	if a.session.IsAuthenticated() {
		return nil
	}
	profile := ""
	if a.settings.Profile != domain.DefaultProfile {
		profile = " --profile " + string(a.settings.Profile)
	}
	return fmt.Errorf("%w: run `dm login%s` first", domain.ErrNotAuthenticated, profile)
}
