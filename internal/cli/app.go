package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/chunkstore/internal/commands"
	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/embeddings"
	"github.com/nickcecere/chunkstore/internal/indexer"
	"github.com/nickcecere/chunkstore/internal/ui"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Debug("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openCommands opens the store under the configured data directory.
func openCommands(ctx context.Context, cfg *config.Config, opts ...commands.Option) (*commands.Commands, error) {
	opts = append([]commands.Option{commands.WithStoreOptions(commands.StoreOptions(cfg))}, opts...)
	cmds, err := commands.Open(ctx, cfg.Database.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return cmds, nil
}

// newEmbedder creates the configured embedding service.
func newEmbedder(cfg *config.Config) (embeddings.Service, error) {
	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}
	return emb, nil
}

// removeManifest forgets what the indexer recorded for a dropped table.
func removeManifest(cfg *config.Config, table string) error {
	m, err := indexer.LoadManifest(cfg.ManifestDir(), table)
	if err != nil {
		return err
	}
	return m.Remove()
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			fmt.Fprint(os.Stderr, "\r\033[2K")
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// withSpinner runs fn while a spinner is shown.
func withSpinner(message string, fn func() error) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go showSpinner(message, stop, done)
	err := fn()
	close(stop)
	<-done
	return err
}
