package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"microblog/internal/config"
	"microblog/internal/domain"
)

// DigestService builds the link list of posts archived since the previous digest.
type DigestService struct {
	archive   ArchiveStore
	state     DigestStateStore
	txManager TransactionManager
	siteName  string
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

func NewDigestService(
	archive ArchiveStore,
	state DigestStateStore,
	txManager TransactionManager,
	logger *slog.Logger,
	cfg config.DigestConfig,
) *DigestService {
	return &DigestService{
		archive:   archive,
		state:     state,
		txManager: txManager,
		siteName:  cfg.SiteName,
		logger:    logger.With("component", "digest"),
		now:       time.Now,
	}
}

// Digest collects link posts archived after the stored mark, oldest first, and
// moves the mark to the newest one. It returns domain.ErrNothingToDigest and
// leaves the mark alone when there is nothing new.
func (s *DigestService) Digest(ctx context.Context) (*domain.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var digest *domain.Digest
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		state, err := s.state.Get(txCtx)
		if err != nil {
			return fmt.Errorf("get digest state: %w", err)
		}

		entries, err := s.archive.Since(txCtx, state.LastDigestAt)
		if err != nil {
			return fmt.Errorf("list archive since %s: %w", state.LastDigestAt.Format(time.RFC3339), err)
		}
		if len(entries) == 0 {
			return domain.ErrNothingToDigest
		}

		digest = s.build(state.LastDigestAt, entries)

		mark := entries[len(entries)-1].PublishedAt
		if err := s.state.Update(txCtx, &domain.DigestState{LastDigestAt: mark}); err != nil {
			return fmt.Errorf("update digest state: %w", err)
		}
		return nil
	})
	if errors.Is(err, domain.ErrNothingToDigest) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}

	s.logger.Info("digest generated", "items", len(digest.Items))
	return digest, nil
}

func (s *DigestService) build(since time.Time, entries []domain.ArchiveEntry) *domain.Digest {
	now := s.now()
	digest := &domain.Digest{
		Title:       fmt.Sprintf("%s Link List for %s", s.siteName, now.Format("Monday 2006-01-02")),
		GeneratedAt: now,
		Items:       make([]domain.DigestItem, 0, len(entries)),
	}
	if !since.IsZero() {
		digest.Since = &since
	}
	for _, e := range entries {
		digest.Items = append(digest.Items, domain.NewDigestItem(e))
	}
	return digest
}
