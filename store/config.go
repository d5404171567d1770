package store

import bolt "go.etcd.io/bbolt"

// GetConfig reads a string value from the config bucket (key/value
// storage for strategy selection, spec.md §4.3).
func (d *DB) GetConfig(key string) (string, bool, error) {
	var val string
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketConfig).Get([]byte(key))
		if v != nil {
			val = string(v)
			ok = true
		}
		return nil
	})
	return val, ok, err
}

// SetConfig writes a string value to the config bucket.
func (d *DB) SetConfig(key, value string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).Put([]byte(key), []byte(value))
	})
}
