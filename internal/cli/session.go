package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/auth"
	"github.com/dvloznov/pocketbook/internal/cloudsync"
	"github.com/dvloznov/pocketbook/internal/config"
	"github.com/dvloznov/pocketbook/internal/engine"
	"github.com/dvloznov/pocketbook/internal/logger"
)

const (
	seedTimeout  = 30 * time.Second
	closeTimeout = 30 * time.Second
)

// session is an open engine for the duration of one command.
type session struct {
	cfg      config.Config
	log      zerolog.Logger
	eng      *engine.Engine
	logClose io.Closer
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	log, logClose, err := logger.NewFromConfig(cfg.Log)
	if err != nil {
		return nil, err
	}

	eng, err := engine.Open(ctx, cfg, log)
	if err != nil {
		_ = logClose.Close()
		return nil, err
	}

	s := &session{cfg: cfg, log: log, eng: eng, logClose: logClose}

	if opts.UID == "" {
		eng.Auth().ResolveAnonymous()
		return s, nil
	}

	if eng.Sync().Status().State == cloudsync.StateDisabled {
		_ = s.close(ctx)
		return nil, errors.New("--uid needs a remote store; set remote.driver")
	}
	if err := eng.Auth().SignIn(auth.Identity{UID: opts.UID}); err != nil {
		_ = s.close(ctx)
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()
	if err := eng.WaitSynced(waitCtx); err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	if status := eng.Sync().Status(); status.LastError != "" {
		log.Warn().Str("uid", opts.UID).Str("error", status.LastError).Msg("Cloud copy unavailable, continuing with local data")
	}
	return s, nil
}

// close pushes pending changes and releases the stores.
func (s *session) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	err := s.eng.Close(ctx)
	_ = s.logClose.Close()
	return err
}

// withSession runs fn against an open session and closes it afterwards.
func withSession(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, s *session) error) (err error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(logger.WithContext(ctx, s.log), s)
}
