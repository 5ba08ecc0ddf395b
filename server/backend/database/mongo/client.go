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

// Package mongo implements database interfaces using MongoDB.
package mongo

import (
	"context"
	"fmt"
	"io"
	gotime "time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/cache"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend/blobs"
	"github.com/revdoc/revdoc/server/backend/database"
	"github.com/revdoc/revdoc/server/logging"
)

const sequenceCounterID = "revisions"

var _ database.Database = (*Client)(nil)

type revKey struct {
	docID types.DocID
	revID types.RevID
}

// Client is a client that connects to Mongo DB and reads or saves revisions.
//
// A commit inserts the revision record first and then moves the document
// head with a compare-and-swap on its current revision. A commit that loses
// the swap deletes the record it inserted.
type Client struct {
	config *Config
	client *mongo.Client
	db     *mongo.Database
	blobs  blobs.Store
	logger logging.Logger

	bodyCache *cache.LRU[revKey, *database.RevInfo]

	// afterCompactHeadRead runs in Compact between reading the head and
	// dropping bodies. Tests use it to commit in between.
	afterCompactHeadRead func()
}

// Dial creates an instance of Client and dials the given MongoDB.
func Dial(conf *Config, blobStore blobs.Store) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.ParseConnectionTimeout())
	defer cancel()

	clientOptions := options.Client().ApplyURI(conf.ConnectionURI)
	if conf.MonitoringEnabled {
		threshold, err := gotime.ParseDuration(conf.MonitoringSlowQueryThreshold)
		if err != nil {
			return nil, fmt.Errorf("parse slow query threshold: %w", err)
		}
		clientOptions.SetMonitor(NewQueryMonitor(threshold).CommandMonitor())
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, conf.ParsePingTimeout())
	defer cancelPing()

	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	dbName := conf.Database
	if dbName == "" {
		dbName = DefaultDatabase
	}
	db := client.Database(dbName)
	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	cacheSize := conf.BodyCacheSize
	if cacheSize == 0 {
		cacheSize = DefaultBodyCacheSize
	}
	bodyCache, err := cache.NewLRU[revKey, *database.RevInfo]("mongo-bodies", cacheSize)
	if err != nil {
		return nil, fmt.Errorf("initialize body cache: %w", err)
	}

	logging.DefaultLogger().Infof("MongoDB connected, URI: %s, DB: %s", conf.ConnectionURI, dbName)

	return &Client{
		config:    conf,
		client:    client,
		db:        db,
		blobs:     blobStore,
		logger:    logging.New("mongo"),
		bodyCache: bodyCache,
	}, nil
}

// Close all resources of this client.
func (c *Client) Close() error {
	if err := c.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}

	c.bodyCache.Purge()
	return nil
}

// BodyCacheStats returns the statistics of the body cache.
func (c *Client) BodyCacheStats() *cache.Stats {
	return c.bodyCache.Stats()
}

// FindDocInfo returns the head record of the given document.
func (c *Client) FindDocInfo(ctx context.Context, docID types.DocID) (*database.DocInfo, error) {
	info, err := c.findDocInfo(ctx, docID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("find document %s: %w", docID, database.ErrDocumentNotFound)
	}
	return info, nil
}

// ListDocInfos returns the head records of all documents ordered by id.
func (c *Client) ListDocInfos(ctx context.Context) ([]*database.DocInfo, error) {
	cursor, err := c.db.Collection(ColDocuments).Find(
		ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var infos []*database.DocInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	return infos, nil
}

// LoadBody returns the body of the given revision.
func (c *Client) LoadBody(ctx context.Context, docID types.DocID, revID types.RevID) (*properties.Set, error) {
	key := revKey{docID: docID, revID: revID}
	if rev, ok := c.bodyCache.Get(key); ok {
		return database.DecodeBody(rev.Body)
	}

	rev, err := c.findRevInfo(ctx, docID, revID, true)
	if err != nil {
		return nil, err
	}
	if !rev.HasBody() {
		return nil, fmt.Errorf("body of %s@%s: %w", docID, revID, database.ErrBodyNotFound)
	}

	c.bodyCache.Add(key, rev)
	return database.DecodeBody(rev.Body)
}

// Revision returns the info of the given revision.
func (c *Client) Revision(ctx context.Context, docID types.DocID, revID types.RevID) (document.RevisionInfo, error) {
	rev, err := c.findRevInfo(ctx, docID, revID, false)
	if err != nil {
		return document.RevisionInfo{}, err
	}
	return rev.ToRevisionInfo(), nil
}

// Parent returns the parent of the given revision.
func (c *Client) Parent(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) (document.RevisionInfo, bool, error) {
	rev, err := c.findRevInfo(ctx, docID, revID, false)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	if !rev.HasParent() {
		return document.RevisionInfo{}, false, nil
	}

	parent, err := c.findRevInfo(ctx, docID, rev.ParentID, false)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	return parent.ToRevisionInfo(), true, nil
}

// Ancestry returns the lineage of the given revision, oldest first. It
// fetches the tree of the document once and walks it in memory.
func (c *Client) Ancestry(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) ([]document.RevisionInfo, error) {
	cursor, err := c.db.Collection(ColRevisions).Find(
		ctx,
		bson.M{"doc_id": docID},
		options.Find().SetProjection(bson.M{"body": 0}),
	)
	if err != nil {
		return nil, fmt.Errorf("find revisions of %s: %w", docID, err)
	}

	var revs []*database.RevInfo
	if err := cursor.All(ctx, &revs); err != nil {
		return nil, fmt.Errorf("fetch revisions of %s: %w", docID, err)
	}

	tree := make(map[types.RevID]*database.RevInfo, len(revs))
	for _, rev := range revs {
		tree[rev.RevID] = rev
	}

	lookup := func(id types.RevID) (*database.RevInfo, error) {
		rev, ok := tree[id]
		if !ok {
			return nil, fmt.Errorf("find revision %s@%s: %w", docID, id, database.ErrRevisionNotFound)
		}
		return rev, nil
	}

	rev, err := lookup(revID)
	if err != nil {
		return nil, err
	}
	return database.Ancestry(rev, lookup)
}

// CurrentRevision returns the winning revision of the document.
func (c *Client) CurrentRevision(ctx context.Context, docID types.DocID) (document.RevisionInfo, bool, error) {
	info, err := c.findDocInfo(ctx, docID)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	if info == nil {
		return document.RevisionInfo{}, false, nil
	}
	return info.CurrentRevision(), true, nil
}

// Commit stores the draft as a child of its parent.
func (c *Client) Commit(ctx context.Context, req document.CommitRequest) (document.CommitResult, error) {
	head, err := c.findDocInfo(ctx, req.DocID)
	if err != nil {
		return document.CommitResult{}, err
	}

	commit, err := database.PrepareCommit(ctx, c.blobs, head, req, gotime.Now())
	if err != nil {
		return document.CommitResult{}, err
	}

	seq, err := c.nextSequence(ctx)
	if err != nil {
		return document.CommitResult{}, err
	}
	commit.Rev.Sequence = seq

	if _, err := c.db.Collection(ColRevisions).InsertOne(ctx, commit.Rev); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return document.CommitResult{}, fmt.Errorf(
				"revision %s@%s already exists: %w", req.DocID, commit.Rev.RevID, database.ErrConflictOnCommit,
			)
		}
		return document.CommitResult{}, fmt.Errorf("insert revision %s@%s: %w", req.DocID, commit.Rev.RevID, err)
	}

	if err := c.advanceHead(ctx, head, req.DocID, commit.Rev); err != nil {
		c.discardRevision(commit.Rev)
		return document.CommitResult{}, err
	}

	c.bodyCache.Add(revKey{docID: req.DocID, revID: commit.Rev.RevID}, commit.Rev)
	return commit.Result(), nil
}

// advanceHead moves the head of the document to rev if it is still head.
func (c *Client) advanceHead(
	ctx context.Context,
	head *database.DocInfo,
	docID types.DocID,
	rev *database.RevInfo,
) error {
	if head == nil {
		next := &database.DocInfo{ID: docID}
		next.Advance(rev)

		if _, err := c.db.Collection(ColDocuments).InsertOne(ctx, next); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("document %s created concurrently: %w", docID, database.ErrConflictOnCommit)
			}
			return fmt.Errorf("insert document %s: %w", docID, err)
		}
		return nil
	}

	next := head.DeepCopy()
	next.Advance(rev)

	result, err := c.db.Collection(ColDocuments).UpdateOne(ctx, bson.M{
		"_id":            docID,
		"current_rev_id": head.CurrentRevID,
	}, bson.M{
		"$set": bson.M{
			"current_rev_id": next.CurrentRevID,
			"generation":     next.Generation,
			"deleted":        next.Deleted,
			"sequence":       next.Sequence,
			"updated_at":     next.UpdatedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("update document %s: %w", docID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("head of %s moved from %s: %w", docID, head.CurrentRevID, database.ErrConflictOnCommit)
	}
	return nil
}

// discardRevision deletes the record of a commit that lost the race for
// the head. It runs detached from the caller's context so that a canceled
// commit still cleans up.
func (c *Client) discardRevision(rev *database.RevInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ParseConnectionTimeout())
	defer cancel()

	if _, err := c.db.Collection(ColRevisions).DeleteOne(ctx, bson.M{
		"doc_id": rev.DocID,
		"rev_id": rev.RevID,
	}); err != nil {
		c.logger.Errorf("discard revision %s@%s: %v", rev.DocID, rev.RevID, err)
	}
}

func (c *Client) nextSequence(ctx context.Context) (types.Sequence, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	if err := c.db.Collection(ColCounters).FindOneAndUpdate(
		ctx,
		bson.M{"_id": sequenceCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return types.Sequence(counter.Seq), nil
}

// OpenAttachment opens the content stored under the given digest.
func (c *Client) OpenAttachment(ctx context.Context, digest string) (io.ReadCloser, error) {
	return database.OpenAttachment(ctx, c.blobs, digest)
}

// Compact drops the bodies of the non-current revisions of the document.
// Commits may land while it runs, so it only touches revisions older than
// the head it read: history is linear and every commit raises the
// generation.
func (c *Client) Compact(ctx context.Context, docID types.DocID) (int, error) {
	head, err := c.findDocInfo(ctx, docID)
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, fmt.Errorf("compact %s: %w", docID, database.ErrDocumentNotFound)
	}
	if c.afterCompactHeadRead != nil {
		c.afterCompactHeadRead()
	}

	filter := bson.M{
		"doc_id":     docID,
		"generation": bson.M{"$lt": head.Generation},
		"body":       bson.M{"$ne": nil},
	}

	cursor, err := c.db.Collection(ColRevisions).Find(ctx, filter, options.Find().SetProjection(bson.M{"rev_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("find revisions of %s: %w", docID, err)
	}
	var revs []*database.RevInfo
	if err := cursor.All(ctx, &revs); err != nil {
		return 0, fmt.Errorf("fetch revisions of %s: %w", docID, err)
	}

	result, err := c.db.Collection(ColRevisions).UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"body": nil},
	})
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", docID, err)
	}

	for _, rev := range revs {
		c.bodyCache.Remove(revKey{docID: docID, revID: rev.RevID})
	}
	return int(result.ModifiedCount), nil
}

func (c *Client) findDocInfo(ctx context.Context, docID types.DocID) (*database.DocInfo, error) {
	var info database.DocInfo
	err := c.db.Collection(ColDocuments).FindOne(ctx, bson.M{"_id": docID}).Decode(&info)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", docID, err)
	}
	return &info, nil
}

func (c *Client) findRevInfo(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
	withBody bool,
) (*database.RevInfo, error) {
	opts := options.FindOne()
	if !withBody {
		opts.SetProjection(bson.M{"body": 0})
	}

	var rev database.RevInfo
	err := c.db.Collection(ColRevisions).FindOne(ctx, bson.M{
		"doc_id": docID,
		"rev_id": revID,
	}, opts).Decode(&rev)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("find revision %s@%s: %w", docID, revID, database.ErrRevisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find revision %s@%s: %w", docID, revID, err)
	}
	return &rev, nil
}
