// Package services – CatalogService
//
// Episodes, maps and channels. Reads are public; creation is limited to
// admins and uses the same create-if-absent helpers as seeding.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/repo"
)

// CatalogService manages the slot catalog.
type CatalogService struct {
	DB *gorm.DB
}

// NewCatalogService returns a CatalogService over db.
func NewCatalogService(db *gorm.DB) *CatalogService { return &CatalogService{DB: db} }

// Episodes lists all episodes.
func (s *CatalogService) Episodes(ctx context.Context) ([]domain.Episode, error) {
	out, err := repo.ListEpisodes(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list episodes", err)
	}
	return nonNil(out), nil
}

// Maps lists maps, optionally for one episode.
func (s *CatalogService) Maps(ctx context.Context, episodeNumber *int) ([]domain.Map, error) {
	out, err := repo.ListMaps(ctx, s.DB, episodeNumber)
	if err != nil {
		return nil, storeErr("list maps", err)
	}
	return nonNil(out), nil
}

// Channels lists all channels.
func (s *CatalogService) Channels(ctx context.Context) ([]domain.Channel, error) {
	out, err := repo.ListChannels(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list channels", err)
	}
	return nonNil(out), nil
}

// CreateEpisode adds an episode. created is false if the number existed.
func (s *CatalogService) CreateEpisode(ctx context.Context, actor *auth.Identity, number int, name string) (*domain.Episode, bool, error) {
	if err := s.admin(ctx, actor); err != nil {
		return nil, false, err
	}
	name = normalizeNickname(name)
	if name == "" {
		return nil, false, invalid("name", "must not be empty")
	}
	e, created, err := repo.EnsureEpisode(ctx, s.DB, number, name)
	if err != nil {
		return nil, false, storeErr("create episode", err)
	}
	return e, created, nil
}

// CreateMap adds a map to an existing episode.
func (s *CatalogService) CreateMap(ctx context.Context, actor *auth.Identity, m domain.Map) (*domain.Map, bool, error) {
	if err := s.admin(ctx, actor); err != nil {
		return nil, false, err
	}
	m.Name = normalizeNickname(m.Name)
	if m.Name == "" {
		return nil, false, invalid("name", "must not be empty")
	}
	if _, err := repo.GetEpisodeByNumber(ctx, s.DB, m.EpisodeNumber); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, invalid("episode_number", "episode %d does not exist", m.EpisodeNumber)
		}
		return nil, false, storeErr("load episode", err)
	}
	out, created, err := repo.EnsureMap(ctx, s.DB, m)
	if err != nil {
		return nil, false, storeErr("create map", err)
	}
	return out, created, nil
}

func (s *CatalogService) admin(ctx context.Context, actor *auth.Identity) error {
	actor, err := loadIdentity(ctx, s.DB, actor)
	if err != nil {
		return err
	}
	if !auth.CanAdminister(actor) {
		return forbidden("manage the catalog")
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
