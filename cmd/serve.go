package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/agent"
	"github.com/fmuoria/cv-inbox-screener/internal/api"
	"github.com/fmuoria/cv-inbox-screener/internal/auth"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "port to listen on (default 8080)")
	v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	scorer, closeScorer, err := newScorer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeScorer()

	var creds *auth.CredentialStore
	if cfg.GmailEnabled() {
		creds = auth.NewCredentialStore(auth.NewGmailOAuthConfig(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RedirectURL))
	} else {
		log.Warn("gmail client id or secret missing, mailbox connection disabled")
	}

	screener := agent.NewScreener(store, newHarvester(store, cfg, log), scorer, creds, log)
	if cfg.OutlookEnabled() {
		outlook := auth.NewOutlookOAuthConfig(cfg.Outlook.ClientID, cfg.Outlook.ClientSecret, cfg.Outlook.RedirectURL, cfg.Outlook.Tenant)
		screener.EnableOutlook(auth.NewCredentialStore(outlook), cfg.Outlook.GraphURL)
	} else {
		log.Debug("microsoft client id or secret missing, outlook disabled")
	}
	server := api.NewServer(screener, cfg.Server.FrontendURL, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting the cv-screener api", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
