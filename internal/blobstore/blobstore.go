// Package blobstore keeps generated images in named buckets inside a
// single bbolt file and hands out public URLs for them. Writes are upserts:
// putting the same filename twice overwrites the previous content.
package blobstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("blobstore: not found")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]`)

const (
	keyData        = "data"
	keyContentType = "content_type"
	keyCreatedAt   = "created_at"
)

// BlobInfo describes a stored blob for listing/sweeping purposes.
type BlobInfo struct {
	Name      string
	CreatedAt time.Time
}

type Store struct {
	db      *bolt.DB
	baseURL string
}

// Open opens (or creates) the blob database. baseURL is the externally
// reachable prefix used to build public URLs.
func Open(path string, baseURL string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "blobstore: open")
	}
	return &Store{db: db, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data under bucket/filename and returns the public URL.
func (s *Store) Put(bucket, filename string, data []byte, contentType string) (string, error) {
	if filename == "" {
		return "", errors.New("blobstore: empty filename")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		// Recreate the per-file bucket so stale metadata never survives an
		// overwrite.
		if b.Bucket([]byte(filename)) != nil {
			if err := b.DeleteBucket([]byte(filename)); err != nil {
				return err
			}
		}
		fb, err := b.CreateBucket([]byte(filename))
		if err != nil {
			return err
		}
		if err := fb.Put([]byte(keyData), data); err != nil {
			return err
		}
		if err := fb.Put([]byte(keyContentType), []byte(contentType)); err != nil {
			return err
		}
		nanos := strconv.FormatInt(time.Now().UnixNano(), 10)
		return fb.Put([]byte(keyCreatedAt), []byte(nanos))
	})
	if err != nil {
		return "", errors.Wrapf(err, "blobstore: put %s/%s", bucket, filename)
	}
	return s.PublicURL(bucket, filename), nil
}

// Get returns the stored content and its content type.
func (s *Store) Get(bucket, filename string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := s.db.View(func(tx *bolt.Tx) error {
		fb := fileBucket(tx, bucket, filename)
		if fb == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), fb.Get([]byte(keyData))...)
		contentType = string(fb.Get([]byte(keyContentType)))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// fileBucket resolves the nested per-file bucket, or nil if either level
// is missing.
func fileBucket(tx *bolt.Tx, bucket, filename string) *bolt.Bucket {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	return b.Bucket([]byte(filename))
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(bucket, filename string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil || b.Bucket([]byte(filename)) == nil {
			return nil
		}
		return b.DeleteBucket([]byte(filename))
	})
	return errors.Wrapf(err, "blobstore: delete %s/%s", bucket, filename)
}

// List returns all blobs in a bucket.
func (s *Store) List(bucket string) ([]BlobInfo, error) {
	var infos []BlobInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEachBucket(func(name []byte) error {
			info := BlobInfo{Name: string(name)}
			if fb := b.Bucket(name); fb != nil {
				if nanos, err := strconv.ParseInt(string(fb.Get([]byte(keyCreatedAt))), 10, 64); err == nil {
					info.CreatedAt = time.Unix(0, nanos)
				}
			}
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "blobstore: list %s", bucket)
	}
	return infos, nil
}

// PublicURL builds the externally reachable URL for a blob.
func (s *Store) PublicURL(bucket, filename string) string {
	return fmt.Sprintf("%s/public/%s/%s", s.baseURL, bucket, filename)
}

// MakeFilename builds a collision-resistant name of the form
// {prefix}-{millis}-{identifier}.{ext}. The identifier is reduced to
// [A-Za-z0-9-] and capped at 20 characters. Same-millisecond calls with an
// identical identifier can still collide; catalog writes are a
// low-frequency admin action, so that is accepted.
func MakeFilename(prefix, identifier, ext string) string {
	clean := unsafeChars.ReplaceAllString(identifier, "-")
	if len(clean) > 20 {
		clean = clean[:20]
	}
	return fmt.Sprintf("%s-%d-%s.%s", prefix, time.Now().UnixMilli(), clean, ext)
}
