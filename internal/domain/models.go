// Package domain defines the persistence models of the slot board: accounts,
// the episode/map/channel catalog, live trackers and the shared chat. These
// types are mapped with GORM and shared by the repository, service, realtime
// and HTTP layers.
package domain

import "time"

// Role is the privilege level of an account. Roles are totally ordered:
// viewer < chatter < editor < admin.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleChatter Role = "chatter"
	RoleEditor  Role = "editor"
	RoleAdmin   Role = "admin"
)

// Rank returns the position of r in the role order, or -1 for unknown roles.
func (r Role) Rank() int {
	switch r {
	case RoleViewer:
		return 0
	case RoleChatter:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	}
	return -1
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether r ranks at or above min. Unknown roles never do.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// User is an account able to authenticate against the board.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Username: unique login name.
//   - PasswordHash: bcrypt hash; never serialized.
//   - Nickname: display name used in presence and as the default tracker nickname.
//   - Role: privilege level (see Role).
type User struct {
	ID           uint      `json:"id"         gorm:"primaryKey"`
	Username     string    `json:"username"   gorm:"type:varchar(32);not null;uniqueIndex:ux_users_username"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	Nickname     string    `json:"nickname"   gorm:"type:varchar(32);not null"`
	Role         Role      `json:"role"       gorm:"type:varchar(16);not null;default:'viewer';check:role IN ('viewer','chatter','editor','admin')"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Episode is a top-level grouping of maps, addressed by its number.
type Episode struct {
	ID     uint   `json:"id"     gorm:"primaryKey"`
	Number int    `json:"number" gorm:"not null;uniqueIndex:ux_episodes_number"`
	Name   string `json:"name"   gorm:"type:varchar(64);not null"`
}

// TableName returns the database table name for Episode.
func (Episode) TableName() string { return "episodes" }

// Map is a playable area inside an episode. (EpisodeNumber, Name) is the
// natural key used when seeding.
type Map struct {
	ID            uint   `json:"id"             gorm:"primaryKey"`
	EpisodeNumber int    `json:"episode_number" gorm:"not null;uniqueIndex:ux_maps_episode_name,priority:1"`
	Name          string `json:"name"           gorm:"type:varchar(64);not null;uniqueIndex:ux_maps_episode_name,priority:2"`
	Level         int    `json:"level"          gorm:"not null;default:0"`
	Favourite     bool   `json:"favourite"      gorm:"not null;default:false"`

	Episode *Episode `json:"-" gorm:"foreignKey:EpisodeNumber;references:Number;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Map.
func (Map) TableName() string { return "maps" }

// Channel is a server instance. Its ID is the channel number itself.
type Channel struct {
	ID   uint   `json:"id"   gorm:"primaryKey;autoIncrement:false"`
	Name string `json:"name" gorm:"type:varchar(64);not null"`
}

// TableName returns the database table name for Channel.
func (Channel) TableName() string { return "channels" }

// Status bounds of a tracker.
const (
	MinStatus = 0.0
	MaxStatus = 5.0
)

// Tracker is one participant's live report on a slot (episode, map, channel).
// Level is copied from the map at creation so listings can sort on it without
// a join.
type Tracker struct {
	ID            uint      `json:"id"             gorm:"primaryKey"`
	EpisodeNumber int       `json:"episode_number" gorm:"not null;index:idx_trackers_slot,priority:1"`
	MapID         uint      `json:"map_id"         gorm:"not null;index:idx_trackers_slot,priority:2"`
	ChannelID     uint      `json:"channel_id"     gorm:"not null;index:idx_trackers_slot,priority:3"`
	Level         int       `json:"level"          gorm:"not null;default:0"`
	Status        float64   `json:"status"         gorm:"not null;default:0;check:chk_trackers_status,status >= 0 AND status <= 5"`
	Nickname      string    `json:"nickname"       gorm:"type:varchar(32);not null"`
	UserID        uint      `json:"user_id"        gorm:"not null;index"`
	CreatedAt     time.Time `json:"created_at"     gorm:"index:idx_trackers_created"`
	UpdatedAt     time.Time `json:"updated_at"`

	Episode *Episode `json:"-" gorm:"foreignKey:EpisodeNumber;references:Number;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Map     *Map     `json:"-" gorm:"foreignKey:MapID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Channel *Channel `json:"-" gorm:"foreignKey:ChannelID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Owner   *User    `json:"-" gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Tracker.
func (Tracker) TableName() string { return "trackers" }

// Room returns the room this tracker's updates are published to.
func (t Tracker) Room() RoomKey {
	return NewRoomKey(t.EpisodeNumber, t.MapID, t.ChannelID)
}

// ChatMessage is a post in the shared chat. Author is preloaded for
// serialization and carries the public account view.
type ChatMessage struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	UserID    uint      `json:"user_id"    gorm:"not null;index"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_created"`

	Author *User `json:"author,omitempty" gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }
