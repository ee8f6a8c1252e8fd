package websites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
)

var (
	ErrInvalidURL = domain.ErrInvalidURL
	ErrNotFound   = errors.New("website not found")
	ErrNoOwner    = errors.New("userId is required")
)

// Service registers the sites scans run against. Ownership and API key
// storage belong to the hosting console; this is the minimal surface the
// scanner needs.
type Service struct {
	repo ports.WebsiteRepository
}

var _ ports.Websites = (*Service)(nil)

func New(repo ports.WebsiteRepository) *Service { return &Service{repo: repo} }

func (s *Service) Register(ctx context.Context, rawurl, userID string, apiKey *string) (domain.Website, error) {
	if userID == "" {
		return domain.Website{}, ErrNoOwner
	}
	target, err := domain.NewTarget(rawurl, "")
	if err != nil {
		return domain.Website{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawurl)
	}
	if apiKey != nil && *apiKey == "" {
		apiKey = nil
	}

	w := domain.Website{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       target.URL.String(),
		APIKey:    apiKey,
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.repo.CreateWebsite(ctx, w)
	if err != nil {
		return domain.Website{}, fmt.Errorf("create website: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, websiteID, userID string) (domain.Website, error) {
	w, err := s.repo.GetWebsite(ctx, websiteID, userID)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.Website{}, ErrNotFound
	}
	return w, err
}
