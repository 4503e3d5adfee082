package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bee-cms/bee/internal/config"
	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/importer"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/bee-cms/bee/internal/service"
	"github.com/bee-cms/bee/internal/slug"
	"github.com/bee-cms/bee/internal/storage"
	"github.com/bee-cms/bee/internal/validation"
	"github.com/bee-cms/bee/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// Tables printed by the listing flags go to stdout, so logs go to stderr.
	log := logger.New(os.Stderr, logCfg.Level, logCfg.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(log).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand(log zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "bee",
		Short:        "Import legacy blog exports into bee",
		SilenceUsage: true,
	}

	validate := validation.NewValidator()
	root.AddCommand(
		newMigrateCommand(log),
		newTypePadCommand(log, validate),
		newLiveJournalCommand(log, validate),
		newMovableTypeCommand(log, validate),
		newVoxCommand(log, validate),
		newTumblrCommand(log, validate),
		newRewriteLinksCommand(log),
		newServeCommand(log),
	)
	return root
}

// app holds the wired collaborators a command needs once configuration and
// the database are available.
type app struct {
	log      zerolog.Logger
	cfg      *config.Config
	db       *database.DB
	repos    *repository.Repositories
	services *service.Services
}

// openApp loads configuration, connects to the database and brings the
// schema up to date.
func openApp(log zerolog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	repos := repository.New(db)
	return &app{
		log:      log,
		cfg:      cfg,
		db:       db,
		repos:    repos,
		services: service.NewServices(repos, cfg, log),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// importerDeps wires the shared importer collaborators. The link rewriter
// sees every saved post.
func (a *app) importerDeps() importer.Deps {
	return importer.Deps{
		Repos:     a.repos,
		Store:     storage.NewLocalStore(a.cfg.Storage.MediaRoot, a.cfg.Storage.MediaURL),
		Slugs:     slug.New(),
		Observers: []importer.PostObserver{a.services.Rewriter},
		Log:       a.log,
	}
}
