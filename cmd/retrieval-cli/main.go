// Command retrieval-cli runs the retrieval engine's searches and loaders
// from the shell, against the same configuration as the API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/inventory-retrieval/app"
	"github.com/upb/inventory-retrieval/config"
	"github.com/upb/inventory-retrieval/handlers"
	"github.com/upb/inventory-retrieval/internal/observability"
	"go.uber.org/zap"
)

// backend is what the commands need from a wired application
type backend struct {
	retrieval  handlers.RetrievalService
	inventory  handlers.InventoryService
	documents  handlers.DocumentService
	initSchema func(ctx context.Context) error
	close      func()
}

// opener builds a backend; tests substitute fakes
type opener func(ctx context.Context, logger *zap.Logger) (*backend, error)

func main() {
	s := &session{open: openBackend}
	err := newRootCmd(s).Execute()
	s.close()
	if err != nil {
		os.Exit(1)
	}
}

// openBackend loads configuration and wires the real services
func openBackend(ctx context.Context, logger *zap.Logger) (*backend, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &backend{
		retrieval:  deps.RetrievalService,
		inventory:  deps.InventoryService,
		documents:  deps.DocumentService,
		initSchema: deps.RepoFactory.InitSchema,
		close: func() {
			if err := deps.Close(context.Background()); err != nil {
				logger.Warn("failed to close dependencies", zap.Error(err))
			}
		},
	}, nil
}

// session opens the backend on first use so help and completion never
// touch the database.
type session struct {
	open     opener
	logLevel string
	logger   *zap.Logger
	be       *backend
}

func (s *session) backend(ctx context.Context) (*backend, error) {
	if s.be != nil {
		return s.be, nil
	}
	logger, err := observability.NewLogger(s.logLevel, "console")
	if err != nil {
		return nil, err
	}
	s.logger = logger
	be, err := s.open(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	s.be = be
	return be, nil
}

// close releases the backend if one was opened; safe to call repeatedly
func (s *session) close() {
	if s.be != nil && s.be.close != nil {
		s.be.close()
		s.be = nil
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}

func newRootCmd(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:          "retrieval-cli",
		Short:        "Hybrid retrieval and inventory search from the command line",
		Long:         `retrieval-cli runs similarity, hybrid and budgeted inventory searches and loads documents or vehicles, using the same environment configuration as the retrieval API.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newSimilarityCmd(s),
		newHybridCmd(s),
		newInventoryCmd(s),
		newLoadCmd(s),
		newSchemaCmd(s),
	)
	return root
}
