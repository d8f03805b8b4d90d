package sharhbot

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ModelUnixTime is embedded in persistent models, for record timestamps
// as unix milliseconds.
type ModelUnixTime struct {
	CreatedAt int64 `json:"created_at" gorm:"autoCreateTime:milli"`
	UpdatedAt int64 `json:"updated_at" gorm:"autoUpdateTime:milli"`
}

// GuildCounter holds the next sequential member ID for a guild.
type GuildCounter struct {
	GuildID string `json:"guild_id" gorm:"primaryKey"`
	NextID  int64  `json:"next_id" gorm:"not null"`
	ModelUnixTime
}

// MemberAssignment records the sequential ID assigned to a member, so
// a member who leaves and rejoins keeps their original number.
type MemberAssignment struct {
	GuildID    string `json:"guild_id" gorm:"primaryKey"`
	MemberID   string `json:"member_id" gorm:"primaryKey"`
	AssignedID int64  `json:"assigned_id" gorm:"not null"`
	Nickname   string `json:"nickname"`
	ModelUnixTime
}

// CreateDB opens (creating if necessary) the SQLite database at the
// given path and migrates the schema.
func CreateDB(
	path string,
	handler slog.Handler,
	slowThreshold time.Duration,
) (*gorm.DB, error) {
	if slowThreshold == 0 {
		slowThreshold = DefaultDatabaseSlowThreshold
	}
	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)),
		&gorm.Config{
			Logger: newGORMLogger(handler, slowThreshold),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.AutoMigrate(
		&GuildCounter{},
		&MemberAssignment{},
	); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}
