package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/NVIDIA/slack-to-jira/internal/config"
	"github.com/NVIDIA/slack-to-jira/internal/event"
	"github.com/NVIDIA/slack-to-jira/internal/jira"
	"github.com/NVIDIA/slack-to-jira/internal/process"
	"github.com/NVIDIA/slack-to-jira/internal/queue"
	"github.com/NVIDIA/slack-to-jira/internal/runtime/supervisor"
	"github.com/NVIDIA/slack-to-jira/internal/secrets"
	"github.com/NVIDIA/slack-to-jira/internal/slack"
	"github.com/NVIDIA/slack-to-jira/internal/store"
	"github.com/NVIDIA/slack-to-jira/internal/transfer"
	"github.com/NVIDIA/slack-to-jira/internal/verify"
	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

var (
	cfgPath    string
	envFile    string
	secretsDir string
)

func main() {
	root := &cobra.Command{
		Use:           "slack-to-jira",
		Short:         "Bridge Slack threads to Jira issues",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file to load before reading config")
	root.PersistentFlags().StringVar(&secretsDir, "secrets-dir", "", "directory with one file per secret; default reads secrets from env")

	root.AddCommand(newVerifyCmd(), newProcessCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Serve the inbound Slack events endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context())
		},
	}
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Consume and process queued events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context())
		},
	}
}

// bootstrap loads the environment file, configuration, and logger shared by
// both commands.
func bootstrap() (*config.Config, logx.Logger, secrets.Provider, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, logx.Logger{}, nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else {
		// Best-effort default; a missing .env is fine.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, logx.Logger{}, nil, err
	}

	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	var sp secrets.Provider
	if secretsDir != "" {
		sp = secrets.FromDir(secretsDir)
	} else {
		sp = secrets.FromEnv()
	}
	return cfg, log, sp, nil
}

func runVerify(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, sp, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Close()
	log = log.With(logx.String("component", "verify"))

	signingSecret, err := sp.Get(ctx, cfg.Slack.SigningSecretID)
	if err != nil {
		return fmt.Errorf("resolving signing secret: %w", err)
	}

	q, err := queue.New(queue.Config{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		Stream:   cfg.Queue.Stream,
		Group:    cfg.Queue.Group,
		Consumer: cfg.Queue.Consumer,
		MinIdle:  cfg.Queue.MinIdle,
	}, log)
	if err != nil {
		return err
	}
	defer q.Close()

	handler := verify.NewHandler(signingSecret, event.NewRegistry(cfg.SyncReaction), q, log)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sup := supervisor.New(ctx, log)
	sup.Go("http", func(ctx context.Context) error {
		log.Info("listening", logx.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	sup.Go("http.shutdown", func(ctx context.Context) error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	<-sup.Context().Done()
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sup.Wait(waitCtx)
}

func runProcess(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, sp, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Close()
	log = log.With(logx.String("component", "process"))

	slackToken, err := sp.Get(ctx, cfg.Slack.TokenSecretID)
	if err != nil {
		return fmt.Errorf("resolving slack token: %w", err)
	}
	jiraToken, err := sp.Get(ctx, cfg.Jira.TokenSecretID)
	if err != nil {
		return fmt.Errorf("resolving jira token: %w", err)
	}

	sc, err := slack.New(slack.Config{
		Token:   slackToken,
		BaseURL: cfg.Slack.APIBaseURL,
	}, log)
	if err != nil {
		return err
	}
	jc, err := jira.New(jira.Config{
		ServerURL: cfg.Jira.ServerURL,
		Token:     jiraToken,
	}, log)
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := queue.New(queue.Config{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		Stream:   cfg.Queue.Stream,
		Group:    cfg.Queue.Group,
		Consumer: cfg.Queue.Consumer,
		MinIdle:  cfg.Queue.MinIdle,
	}, log)
	if err != nil {
		return err
	}
	defer q.Close()

	eng := transfer.NewEngine(transfer.Config{
		SlackToken: slackToken,
		JiraURL:    cfg.Jira.ServerURL,
		JiraToken:  jiraToken,
	}, log)

	deps := event.Deps{
		Slack:    sc,
		Jira:     jc,
		Store:    st,
		Transfer: eng,
		Settings: event.Settings{
			SuccessReaction: cfg.SuccessReaction,
			ErrorReaction:   cfg.ErrorReaction,
			IconURL:         cfg.IconURL,
			IconTitle:       cfg.IconTitle,
			AppName:         cfg.AppName,
		},
		Log: log,
	}
	d := event.NewDispatcher(event.NewRegistry(cfg.SyncReaction), deps)
	proc := process.New(q, d, log)

	sup := supervisor.New(ctx, log)
	sup.GoRestart("consumer", proc.Run)

	<-sup.Context().Done()
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sup.Wait(waitCtx)
}
