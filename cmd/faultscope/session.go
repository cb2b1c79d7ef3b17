package main

import (
	"errors"
	"fmt"

	"github.com/willibrandon/faultscope/internal/cleanup"
	"github.com/willibrandon/faultscope/internal/config"
	"github.com/willibrandon/faultscope/internal/guide"
	"github.com/willibrandon/faultscope/internal/logger"
	"github.com/willibrandon/faultscope/internal/match"
	"github.com/willibrandon/faultscope/internal/query"
	"github.com/willibrandon/faultscope/internal/sshconn"
	"github.com/willibrandon/faultscope/internal/storage/sqlite"
)

// session bundles everything a command needs to talk to the log host.
type session struct {
	cfg     *config.Config
	client  *sshconn.Client
	db      *sqlite.DB
	cleanup *cleanup.Manager
	history *sqlite.HistoryStore
	engine  *query.Engine
}

// openStore opens the local state database holding cleanup registrations
// and query history.
func openStore(cfg *config.Config) (*sqlite.DB, error) {
	db, err := sqlite.Open(cfg.Cleanup.Database)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	return db, nil
}

// loadGuides returns the configured guide file or an empty lookup.
func loadGuides(cfg *config.Config) (guide.Lookup, error) {
	if cfg.Guides.File == "" {
		return guide.Empty{}, nil
	}
	store, err := guide.Load(cfg.Guides.File)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded guide file", "path", cfg.Guides.File, "entries", store.Len())
	return store, nil
}

func loadFaultMatcher(cfg *config.Config) (*match.FaultMatcher, error) {
	if cfg.Patterns.File == "" {
		return match.NewFaultMatcher(), nil
	}
	extra, err := match.LoadSyntaxes(cfg.Patterns.File)
	if err != nil {
		return nil, err
	}
	m := match.NewFaultMatcher(extra...)
	logger.Debug("Loaded fault-id syntaxes", "path", cfg.Patterns.File, "syntaxes", m.Syntaxes())
	return m, nil
}

// newSession wires the SSH client, state database and query engine. The
// connection itself is opened on first use.
func newSession(cfg *config.Config) (*session, error) {
	if err := cfg.SSH.Validate(); err != nil {
		return nil, err
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	guides, err := loadGuides(cfg)
	if err != nil {
		return nil, err
	}
	faults, err := loadFaultMatcher(cfg)
	if err != nil {
		return nil, err
	}

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		client:  sshconn.New(cfg.SSH.ClientConfig(opts.GrepTimeout)),
		db:      db,
		cleanup: cleanup.NewManager(sqlite.NewCleanupStore(db), cfg.Cleanup.Retention),
		history: sqlite.NewHistoryStore(db),
	}
	s.engine = query.New(s.client,
		query.WithOptions(opts),
		query.WithRegistrar(s.cleanup),
		query.WithHistory(s.history),
		query.WithGuides(guides),
		query.WithFaultMatcher(faults),
	)
	return s, nil
}

// Close releases the SSH connection and the database.
func (s *session) Close() error {
	return errors.Join(s.client.Close(), s.db.Close())
}
