package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/assistant"
	"github.com/yolodolo42/chatdefi/internal/llm"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant's chat endpoint",
	Long: `Serve POST /api/chat for the dashboard's chat widget.

The request body is {"messages":[{"role":"user","content":"..."}]}; the reply
is streamed in the AI SDK data stream format.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr, :3000)")
}

func openAssistant(ctx context.Context) (*assistant.Assistant, error) {
	manager, err := authManager()
	if err != nil {
		return nil, err
	}
	provider, err := manager.Open(ctx, llm.ProviderID(cfg.LLM.Provider), cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	return assistant.New(provider, assistant.WithLogger(logger.Named("assistant"))), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openAssistant(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           assistant.NewHandler(a, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("Serving %s on %s with %s\n", assistant.ChatPath, addr, a.Provider().Name())
	logger.Info("server started", zap.String("addr", addr), zap.String("provider", string(a.Provider().ID())))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
