// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Tracker
// model, including the age-based queries used by housekeeping.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/slotboard/internal/domain"
)

// TrackerSortColumns maps accepted sort_by values to columns.
var TrackerSortColumns = map[string]string{
	"status":     "status",
	"level":      "level",
	"nickname":   "nickname",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// TrackerQuery narrows and orders ListTrackers. Unknown SortBy falls back to
// updated_at; any Order other than "asc" sorts descending.
type TrackerQuery struct {
	SortBy        string
	Order         string
	EpisodeNumber *int
}

// deleteChunk bounds the IN list of a single DELETE.
const deleteChunk = 500

// CreateTracker inserts t and fills its id and timestamps.
func CreateTracker(ctx context.Context, db *gorm.DB, t *domain.Tracker) error {
	now := time.Now().UTC()
	t.ID = 0
	t.CreatedAt, t.UpdatedAt = now, now
	return db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

// GetTracker fetches a tracker by id, or ErrNotFound.
func GetTracker(ctx context.Context, db *gorm.DB, id uint) (*domain.Tracker, error) {
	var t domain.Tracker
	if err := db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTracker applies the given column values and bumps updated_at.
// It returns ErrNotFound if the row no longer exists.
func UpdateTracker(ctx context.Context, db *gorm.DB, id uint, fields map[string]any) error {
	set := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		set[k] = v
	}
	set["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Tracker{}).Where("id = ?", id).Updates(set)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTracker removes a tracker by id. It returns ErrNotFound if nothing
// was deleted.
func DeleteTracker(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Tracker{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrackers returns trackers filtered and ordered per q. Ties are broken
// by id so the order is stable.
func ListTrackers(ctx context.Context, db *gorm.DB, q TrackerQuery) ([]domain.Tracker, error) {
	col, ok := TrackerSortColumns[q.SortBy]
	if !ok {
		col = "updated_at"
	}
	desc := q.Order != "asc"

	tx := db.WithContext(ctx).Model(&domain.Tracker{})
	if q.EpisodeNumber != nil {
		tx = tx.Where("episode_number = ?", *q.EpisodeNumber)
	}
	var out []domain.Tracker
	err := tx.
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc}).
		Find(&out).Error
	return out, err
}

// ListTrackersCreatedBefore returns the trackers older than cutoff.
func ListTrackersCreatedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.Tracker, error) {
	var out []domain.Tracker
	err := db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// DeleteTrackersCreatedBefore removes every tracker older than cutoff and
// returns the number of rows deleted.
func DeleteTrackersCreatedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&domain.Tracker{})
	return res.RowsAffected, res.Error
}

// DeleteTrackersByID removes the listed trackers that are still older than
// cutoff and returns the rows it actually deleted (id and slot only). Ids
// already gone or recreated since selection are not returned. On error the
// rows deleted by earlier chunks are returned with it.
func DeleteTrackersByID(ctx context.Context, db *gorm.DB, ids []uint, cutoff time.Time) ([]domain.Tracker, error) {
	returning := clause.Returning{Columns: []clause.Column{
		{Name: "id"}, {Name: "episode_number"}, {Name: "map_id"}, {Name: "channel_id"},
	}}
	var deleted []domain.Tracker
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		var chunk []domain.Tracker
		err := db.WithContext(ctx).
			Clauses(returning).
			Where("id IN ? AND created_at < ?", ids[start:end], cutoff.UTC()).
			Delete(&chunk).Error
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, chunk...)
	}
	return deleted, nil
}
