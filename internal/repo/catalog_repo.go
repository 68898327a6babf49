// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read side of the slot catalog
// (episodes, maps, channels) and create-if-absent helpers used by seeding
// and the admin endpoints.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/domain"
)

// ListEpisodes returns every episode ordered by number.
func ListEpisodes(ctx context.Context, db *gorm.DB) ([]domain.Episode, error) {
	var out []domain.Episode
	err := db.WithContext(ctx).Order("number ASC").Find(&out).Error
	return out, err
}

// GetEpisodeByNumber fetches an episode by its number, or ErrNotFound.
func GetEpisodeByNumber(ctx context.Context, db *gorm.DB, number int) (*domain.Episode, error) {
	var e domain.Episode
	if err := db.WithContext(ctx).Where("number = ?", number).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// EnsureEpisode creates the episode unless one with the same number exists.
// The boolean reports whether a row was inserted.
func EnsureEpisode(ctx context.Context, db *gorm.DB, number int, name string) (*domain.Episode, bool, error) {
	if e, err := GetEpisodeByNumber(ctx, db, number); err == nil {
		return e, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	e := &domain.Episode{Number: number, Name: name}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			e, gerr := GetEpisodeByNumber(ctx, db, number)
			return e, false, gerr
		}
		return nil, false, err
	}
	return e, true, nil
}

// ListMaps returns maps ordered by (episode_number, level). A nil episode
// lists all of them.
func ListMaps(ctx context.Context, db *gorm.DB, episodeNumber *int) ([]domain.Map, error) {
	var out []domain.Map
	q := db.WithContext(ctx).Order("episode_number ASC, level ASC, id ASC")
	if episodeNumber != nil {
		q = q.Where("episode_number = ?", *episodeNumber)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetMap fetches a map by id, or ErrNotFound.
func GetMap(ctx context.Context, db *gorm.DB, id uint) (*domain.Map, error) {
	var m domain.Map
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// EnsureMap creates the map unless (episode_number, name) already exists.
func EnsureMap(ctx context.Context, db *gorm.DB, m domain.Map) (*domain.Map, bool, error) {
	var existing domain.Map
	err := db.WithContext(ctx).
		Where("episode_number = ? AND name = ?", m.EpisodeNumber, m.Name).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	m.ID = 0
	if err := db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, false, ErrDuplicate
		}
		return nil, false, err
	}
	return &m, true, nil
}

// ListChannels returns every channel ordered by number.
func ListChannels(ctx context.Context, db *gorm.DB) ([]domain.Channel, error) {
	var out []domain.Channel
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// GetChannel fetches a channel by number, or ErrNotFound.
func GetChannel(ctx context.Context, db *gorm.DB, id uint) (*domain.Channel, error) {
	var c domain.Channel
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureChannel creates the channel unless its number is taken.
func EnsureChannel(ctx context.Context, db *gorm.DB, id uint, name string) (*domain.Channel, bool, error) {
	if c, err := GetChannel(ctx, db, id); err == nil {
		return c, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	c := &domain.Channel{ID: id, Name: name}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, false, err
	}
	return c, true, nil
}
