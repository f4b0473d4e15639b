/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store persists package records with BoltDB.
//
// A prefix (an environment) is a bucket, and each record in the
// prefix is one JSON value keyed by the record's Key().  The graph
// and matchspec packages never touch storage; callers read a prefix
// here and hand the records to graph.New.
package store

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/Comcast/packmule/record"

	bolt "go.etcd.io/bbolt"
)

// Storage is a prefix store backed by a single BoltDB file.
type Storage struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	return &Storage{
		filename: filename,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s == nil {
		return
	}
	if s.Debug {
		log.Printf("BoltDB "+format, args...)
	}
}

// EnsurePrefix creates the bucket for the given prefix if it doesn't
// already exist.
func (s *Storage) EnsurePrefix(ctx context.Context, prefix string) error {
	if s == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(prefix))
		return err
	})
}

// RemPrefix deletes a prefix and everything in it.
func (s *Storage) RemPrefix(ctx context.Context, prefix string) error {
	if s == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(prefix))
	})
}

// Prefixes lists the known prefixes.
func (s *Storage) Prefixes(ctx context.Context) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	acc := make([]string, 0, 8)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			acc = append(acc, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetRecords returns every record in the prefix.
//
// A missing prefix is not an error; you just get nothing.
func (s *Storage) GetRecords(ctx context.Context, prefix string) ([]*record.Package, error) {
	if s == nil {
		return []*record.Package{}, nil
	}
	recs := make([]*record.Package, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(prefix))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for key, bs := c.First(); key != nil; key, bs = c.Next() {
			var rec record.Package
			if err := json.Unmarshal(bs, &rec); err != nil {
				return err
			}
			s.logf("GetRecords %s record %s", prefix, key)
			recs = append(recs, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logf("GetRecords %s found %d records", prefix, len(recs))

	if len(recs) == 0 {
		return nil, nil
	}

	return recs, nil
}

// WriteRecords stores the given records in the prefix, keyed by
// record.Key().  Writing a record with a key that's already present
// replaces the old value.
func (s *Storage) WriteRecords(ctx context.Context, prefix string, recs []*record.Package) error {
	if s == nil {
		return nil
	}

	if 0 == len(recs) {
		return nil
	}

	vals := make(map[string][]byte, len(recs))

	for _, rec := range recs {
		js, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		vals[rec.Key()] = js
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(prefix))
		if err != nil {
			return err
		}
		for key, bs := range vals {
			if err := b.Put([]byte(key), bs); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRecords removes records by key.  Unknown keys are ignored.
func (s *Storage) DeleteRecords(ctx context.Context, prefix string, keys []string) error {
	if s == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(prefix))
		if b == nil {
			return nil
		}
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
