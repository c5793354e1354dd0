// Package learning maintains per-user category patterns that sharpen over
// repeated confirmations.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/service"
	"github.com/fintalk/fintalk/internal/text"
)

// Confidence schedule. Confidence only moves up with confirmations; the cap
// keeps a learned pattern from ever silently overriding the user.
const (
	initialConfidence = 0.5
	confidenceStep    = 0.1
	confidenceCap     = 0.95

	// Partial matches are only trusted once the stored pattern clears the
	// floor, and even then carry discounted confidence.
	partialPenalty = 0.8
	partialFloor   = 0.6
)

// Store learns and recalls keyword-to-category patterns.
type Store struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewStore creates a pattern store backed by the given storage.
func NewStore(storage service.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{storage: storage, logger: logger}
}

// Register records a confirmed categorization. A new signature starts at the
// initial confidence; a repeat of the same category climbs one step toward
// the cap. A repeat with a different category replaces the old one and
// restarts the schedule, so the latest confirmation always wins.
func (s *Store) Register(ctx context.Context, userID, description string, kind model.TransactionKind, categoryID int64) error {
	keywords := text.Signature(description)
	if keywords == "" {
		// Nothing signature-worthy in the description; skip silently.
		return nil
	}

	existing, err := s.storage.GetPattern(ctx, userID, keywords, kind)
	switch {
	case errors.Is(err, common.ErrNotFound):
		pattern := &model.UserPattern{
			UserID:      userID,
			Keywords:    keywords,
			Kind:        kind,
			CategoryID:  categoryID,
			Occurrences: 1,
			Confidence:  initialConfidence,
		}
		if err := s.storage.SavePattern(ctx, pattern); err != nil {
			return fmt.Errorf("failed to register pattern: %w", err)
		}
		s.logger.Debug("Learned new pattern", "user", userID, "keywords", keywords, "category", categoryID)
		return nil

	case err != nil:
		return fmt.Errorf("failed to look up pattern: %w", err)
	}

	if existing.CategoryID == categoryID {
		existing.Occurrences++
		existing.Confidence = min(existing.Confidence+confidenceStep, confidenceCap)
	} else {
		existing.CategoryID = categoryID
		existing.Occurrences = 1
		existing.Confidence = initialConfidence
	}

	if err := s.storage.SavePattern(ctx, existing); err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}
	s.logger.Debug("Reinforced pattern", "user", userID, "keywords", keywords,
		"confidence", existing.Confidence, "occurrences", existing.Occurrences)
	return nil
}

// Lookup recalls the pattern for a description. An exact signature match is
// returned as-is. When the full signature misses, each token is tried alone
// and the best hit above the floor is returned with discounted confidence
// and Partial set.
func (s *Store) Lookup(ctx context.Context, userID, description string, kind model.TransactionKind) (*model.UserPattern, error) {
	keywords := text.Signature(description)
	if keywords == "" {
		return nil, fmt.Errorf("%w: empty signature", common.ErrNotFound)
	}

	exact, err := s.storage.GetPattern(ctx, userID, keywords, kind)
	if err == nil {
		return exact, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up pattern: %w", err)
	}

	var best *model.UserPattern
	for _, token := range text.Tokens(keywords) {
		p, err := s.storage.GetPatternByToken(ctx, userID, token, kind)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up token pattern: %w", err)
		}
		if best == nil || p.Confidence > best.Confidence {
			best = p
		}
	}

	if best == nil || best.Confidence < partialFloor {
		return nil, fmt.Errorf("%w: no pattern for %q", common.ErrNotFound, keywords)
	}

	partial := *best
	partial.Confidence = best.Confidence * partialPenalty
	partial.Partial = true
	return &partial, nil
}

// List returns the user's learned patterns, strongest first.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]model.UserPattern, error) {
	return s.storage.ListPatterns(ctx, userID, limit)
}

// Forget removes a learned pattern. This is the only way confidence goes
// down.
func (s *Store) Forget(ctx context.Context, userID, description string, kind model.TransactionKind) error {
	keywords := text.Signature(description)
	if keywords == "" {
		return fmt.Errorf("%w: empty signature", common.ErrNotFound)
	}
	return s.storage.DeletePattern(ctx, userID, keywords, kind)
}
