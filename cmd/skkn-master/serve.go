// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

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

	"github.com/spf13/cobra"

	"github.com/pdiddy/skkn-master/internal/llm"
	"github.com/pdiddy/skkn-master/internal/prompt"
	"github.com/pdiddy/skkn-master/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the drafting workflow over HTTP",
	Long: `Serve starts a JSON HTTP API. POST /api/sessions starts a draft in the
background, POST /api/sessions/{id}/advance requests the next part, and
GET /api/sessions/{id}/document?offset=N returns new text for polling clients.
GET /api/sessions/{id}/export downloads the .doc file and DELETE
/api/sessions/{id} forgets a finished session. POST /api/outline and
POST /api/suggest answer one-shot requests.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	svc, err := llm.New(cfg.AI)
	if err != nil {
		return err
	}

	store, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	srv, err := server.New(server.Config{
		Service:  svc,
		Session:  llm.SessionConfigFrom(cfg.AI, prompt.SystemInstruction),
		Export:   exportOptions(cfg),
		Recorder: recorder(store),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s (provider %s)\n", cfg.Server.Addr, cfg.AI.Provider)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().String("provider", "", "generation provider: gemini, openai, or mock")
	serveCmd.Flags().String("model", "", "model identifier")

	rootCmd.AddCommand(serveCmd)
}
