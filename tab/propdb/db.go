// Package propdb persists group and user property overrides, such as tag
// prefixes assigned through commands, in a LevelDB key/value store.
package propdb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/util"
	"github.com/google/uuid"
)

// DB is a property override store. Keys are namespaced per group or per user
// so that all overrides of one subject can be iterated with a prefix scan.
type DB struct {
	ldb *leveldb.DB
}

// Open creates or opens a property store in the given directory.
func Open(dir string) (*DB, error) {
	ldb, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open property store: %w", err)
	}
	return &DB{ldb: ldb}, nil
}

// SetGroupProperty stores an override for all players in a group.
func (db *DB) SetGroupProperty(group, property, value string) error {
	if err := db.ldb.Put(groupKey(group, property), []byte(value), nil); err != nil {
		return fmt.Errorf("store group property: %w", err)
	}
	return nil
}

// RemoveGroupProperty deletes a group override. Removing an absent override
// is not an error.
func (db *DB) RemoveGroupProperty(group, property string) error {
	if err := db.ldb.Delete(groupKey(group, property), nil); err != nil {
		return fmt.Errorf("remove group property: %w", err)
	}
	return nil
}

// GroupProperty returns the override stored for a group property.
func (db *DB) GroupProperty(group, property string) (string, bool, error) {
	return db.get(groupKey(group, property))
}

// GroupProperties returns all overrides stored for a group, keyed by property
// name.
func (db *DB) GroupProperties(group string) (map[string]string, error) {
	return db.scan(groupPrefix(group))
}

// SetUserProperty stores an override for a single player.
func (db *DB) SetUserProperty(id uuid.UUID, property, value string) error {
	if err := db.ldb.Put(userKey(id, property), []byte(value), nil); err != nil {
		return fmt.Errorf("store user property: %w", err)
	}
	return nil
}

// RemoveUserProperty deletes a player override.
func (db *DB) RemoveUserProperty(id uuid.UUID, property string) error {
	if err := db.ldb.Delete(userKey(id, property), nil); err != nil {
		return fmt.Errorf("remove user property: %w", err)
	}
	return nil
}

// UserProperty returns the override stored for a player property.
func (db *DB) UserProperty(id uuid.UUID, property string) (string, bool, error) {
	return db.get(userKey(id, property))
}

// UserProperties returns all overrides stored for a player, keyed by property
// name.
func (db *DB) UserProperties(id uuid.UUID) (map[string]string, error) {
	return db.scan(userPrefix(id))
}

// Close flushes and closes the underlying store.
func (db *DB) Close() error {
	return db.ldb.Close()
}

func (db *DB) get(key []byte) (string, bool, error) {
	value, err := db.ldb.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read property: %w", err)
	}
	return string(value), true, nil
}

func (db *DB) scan(prefix []byte) (map[string]string, error) {
	out := map[string]string{}
	it := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		property := strings.TrimPrefix(string(it.Key()), string(prefix))
		out[property] = string(it.Value())
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("scan properties: %w", err)
	}
	return out, nil
}

func groupPrefix(group string) []byte {
	return []byte("group:" + group + ":")
}

func groupKey(group, property string) []byte {
	return append(groupPrefix(group), property...)
}

func userPrefix(id uuid.UUID) []byte {
	return []byte("user:" + id.String() + ":")
}

func userKey(id uuid.UUID, property string) []byte {
	return append(userPrefix(id), property...)
}
