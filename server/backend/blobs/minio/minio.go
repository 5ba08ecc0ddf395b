/*
 * Copyright 2026 The Revdoc Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package minio implements the blob store on an S3 compatible object
// storage through the MinIO client.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/revdoc/revdoc/server/backend/blobs"
	"github.com/revdoc/revdoc/server/logging"
)

const (
	// DefaultBucket is the bucket blobs are stored in by default.
	DefaultBucket = "revdoc-blobs"

	connectTimeout = 5 * time.Second
)

// Config is the configuration for creating a Store.
type Config struct {
	Endpoint  string `yaml:"Endpoint" validate:"required"`
	AccessKey string `yaml:"AccessKey"`
	SecretKey string `yaml:"SecretKey"`
	Bucket    string `yaml:"Bucket"`
	UseSSL    bool   `yaml:"UseSSL"`
}

// Store keeps each blob as one object of a bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// Dial creates a Store and makes sure its bucket exists.
func Dial(ctx context.Context, conf *Config) (*Store, error) {
	if conf == nil || conf.Endpoint == "" {
		return nil, fmt.Errorf("dial minio: missing endpoint")
	}

	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("dial minio %s: %w", conf.Endpoint, err)
	}

	bucket := conf.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}

	logging.DefaultLogger().Infof("MinIO connected, URI: %s, Bucket: %s", conf.Endpoint, bucket)

	return &Store{client: client, bucket: bucket}, nil
}

// Put stores content under digest.
func (s *Store) Put(ctx context.Context, digest string, content []byte) error {
	key, err := blobs.Key(digest)
	if err != nil {
		return err
	}

	if _, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(content),
		int64(len(content)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	); err != nil {
		return fmt.Errorf("put blob %s: %w", digest, err)
	}
	return nil
}

// Get opens the content stored under digest.
func (s *Store) Get(ctx context.Context, digest string) (io.ReadCloser, error) {
	key, err := blobs.Key(digest)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", digest, err)
	}

	// GetObject is lazy, stat to learn whether the object exists
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", digest, blobs.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("stat blob %s: %w", digest, err)
	}
	return obj, nil
}

// Has returns whether content is stored under digest.
func (s *Store) Has(ctx context.Context, digest string) (bool, error) {
	key, err := blobs.Key(digest)
	if err != nil {
		return false, err
	}

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob %s: %w", digest, err)
	}
	return true, nil
}

// Stat returns the info of the blob stored under digest.
func (s *Store) Stat(ctx context.Context, digest string) (blobs.Info, error) {
	key, err := blobs.Key(digest)
	if err != nil {
		return blobs.Info{}, err
	}

	obj, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return blobs.Info{}, fmt.Errorf("%s: %w", digest, blobs.ErrBlobNotFound)
		}
		return blobs.Info{}, fmt.Errorf("stat blob %s: %w", digest, err)
	}
	return blobs.Info{Digest: digest, ModTime: obj.LastModified}, nil
}

// List calls fn with the info of every object of the bucket.
func (s *Store) List(ctx context.Context, fn func(info blobs.Info) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("list blobs: %w", obj.Err)
		}

		digest, err := blobs.DigestOf(obj.Key)
		if err != nil {
			continue
		}
		if err := fn(blobs.Info{Digest: digest, ModTime: obj.LastModified}); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the content stored under digest.
func (s *Store) Delete(ctx context.Context, digest string) error {
	key, err := blobs.Key(digest)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove blob %s: %w", digest, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
