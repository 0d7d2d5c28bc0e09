package tokenstore

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anot-platform/anot-client/internal/db"
)

const schemaName = "anot_client"

// KVEntry is one stored key.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return schemaName + ".kv_entries" }

// DBStore is a Backend over a Postgres table, for clients that share state
// between machines.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore ensures the schema and table exist.
func NewDBStore(d *gorm.DB) (*DBStore, error) {
	if err := db.EnsureSchema(d, schemaName); err != nil {
		return nil, fmt.Errorf("ensure schema %s: %w", schemaName, err)
	}
	if err := d.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &DBStore{db: d}, nil
}

func (s *DBStore) Load(key string) (string, bool, error) {
	var e KVEntry
	err := s.db.First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

func (s *DBStore) Save(key, value string) error {
	e := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}

func (s *DBStore) Delete(key string) error {
	return s.db.Where("key = ?", key).Delete(&KVEntry{}).Error
}

// Keys lists every stored key.
func (s *DBStore) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Model(&KVEntry{}).Pluck("key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}
