package raft

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SnapshotRecord is one archived state snapshot, keyed by the log
// index it covers. The newest record is what a restarting node
// restores and what the leader streams to a follower that has fallen
// behind the compacted log.
type SnapshotRecord struct {
	ID        uint   `gorm:"primarykey"`
	Index     uint64 `gorm:"uniqueIndex;column:log_index"`
	Term      uint64
	Data      []byte
	CreatedAt time.Time
}

// Archive stores snapshots in an embedded sqlite database.
type Archive struct {
	db *gorm.DB
}

// OpenArchive opens (or creates) the snapshot archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("raft: open archive: %w", err)
	}
	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("raft: migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Save archives a snapshot and prunes all older ones.
func (a *Archive) Save(index, term uint64, data []byte) error {
	rec := SnapshotRecord{Index: index, Term: term, Data: data}
	if err := a.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("raft: archive snapshot %d: %w", index, err)
	}
	return a.db.Where("log_index < ?", index).Delete(&SnapshotRecord{}).Error
}

// Latest returns the newest archived snapshot, ok=false when none
// exists yet.
func (a *Archive) Latest() (SnapshotRecord, bool, error) {
	var rec SnapshotRecord
	err := a.db.Order("log_index desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SnapshotRecord{}, false, nil
	}
	if err != nil {
		return SnapshotRecord{}, false, err
	}
	return rec, true, nil
}
