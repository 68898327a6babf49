// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for ChatMessage.
//
// Reads preload the author so callers can serialize the public account view.
// The retention helpers (DeleteChatCreatedBefore, NthNewestChatID,
// DeleteChatBelowID) are used by the housekeeping engine.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/slotboard/internal/domain"
)

// ChatHistoryQuery selects a page of chat history. Messages created before
// Since are never returned; a non-nil Before narrows to strictly older ones.
type ChatHistoryQuery struct {
	Since  time.Time
	Before *time.Time
	Limit  int
}

// ChatStats summarises the chat table.
type ChatStats struct {
	Total  int64
	Recent int64
}

// CreateChatMessage inserts a message and loads its author.
func CreateChatMessage(ctx context.Context, db *gorm.DB, userID uint, content string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return nil, err
	}
	return GetChatMessage(ctx, db, m.ID)
}

// GetChatMessage fetches a message with its author, or ErrNotFound.
func GetChatMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Preload("Author").First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteChatMessage removes a message by id, or returns ErrNotFound.
func DeleteChatMessage(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.ChatMessage{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChatHistory returns up to q.Limit of the newest matching messages,
// ordered oldest first (CreatedAt ASC, ID ASC).
func ListChatHistory(ctx context.Context, db *gorm.DB, q ChatHistoryQuery) ([]domain.ChatMessage, error) {
	tx := db.WithContext(ctx).Preload("Author").Where("created_at >= ?", q.Since.UTC())
	if q.Before != nil {
		tx = tx.Where("created_at < ?", q.Before.UTC())
	}
	var out []domain.ChatMessage
	if err := tx.Order("created_at DESC, id DESC").Limit(q.Limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetChatStats counts all messages and those created at or after since.
func GetChatStats(ctx context.Context, db *gorm.DB, since time.Time) (ChatStats, error) {
	var st ChatStats
	if err := db.WithContext(ctx).Model(&domain.ChatMessage{}).Count(&st.Total).Error; err != nil {
		return ChatStats{}, err
	}
	if err := db.WithContext(ctx).Model(&domain.ChatMessage{}).Where("created_at >= ?", since.UTC()).Count(&st.Recent).Error; err != nil {
		return ChatStats{}, err
	}
	return st, nil
}

// CountChatMessages returns the number of stored messages.
func CountChatMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.ChatMessage{}).Count(&n).Error
	return n, err
}

// DeleteChatCreatedBefore removes messages older than cutoff.
func DeleteChatCreatedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&domain.ChatMessage{})
	return res.RowsAffected, res.Error
}

// NthNewestChatID returns the id of the n-th message (1-based) in
// (created_at DESC, id DESC) order. ok is false when fewer than n exist.
func NthNewestChatID(ctx context.Context, db *gorm.DB, n int) (id uint, ok bool, err error) {
	if n <= 0 {
		return 0, false, nil
	}
	var ids []uint
	err = db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Order("created_at DESC, id DESC").
		Offset(n-1).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[0], true, nil
}

// DeleteChatBelowID removes every message whose id is lower than boundary.
func DeleteChatBelowID(ctx context.Context, db *gorm.DB, boundary uint) (int64, error) {
	res := db.WithContext(ctx).Where("id < ?", boundary).Delete(&domain.ChatMessage{})
	return res.RowsAffected, res.Error
}

// OldestChatID returns the lowest remaining message id, ok=false if empty.
func OldestChatID(ctx context.Context, db *gorm.DB) (id uint, ok bool, err error) {
	var ids []uint
	err = db.WithContext(ctx).Model(&domain.ChatMessage{}).Order("id ASC").Limit(1).Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[0], true, nil
}
