package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	mongoDefaultDatabase = "trashtasker"
	mongoCollection      = "tasks"
	mongoRemoteIndex     = "idx_tasks_remote"
	mongoSaveAttempts    = 3
)

// Mongo stores tasks as BSON documents in a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	tasks  *mongo.Collection
}

// OpenMongo connects to uri, pings the primary and ensures the indexes. The
// database name is taken from the URI path, defaulting to "trashtasker".
func OpenMongo(ctx context.Context, uri string) (*Mongo, error) {
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, wrap("open", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, wrap("open", fmt.Errorf("failed to ping mongo: %w", err))
	}

	dbName := mongoDefaultDatabase
	if cs, err := parseDatabase(uri); err == nil && cs != "" {
		dbName = cs
	}
	m := &Mongo{client: client, tasks: client.Database(dbName).Collection(mongoCollection)}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_tasks_owner"),
		},
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "remote_task_id", Value: 1},
				{Key: "remote_list_id", Value: 1},
			},
			Options: options.Index().
				SetName(mongoRemoteIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"remote_task_id": bson.M{"$exists": true}}),
		},
	})
	return wrap("ensure indexes", err)
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return wrap("close", m.client.Disconnect(ctx))
}

func (m *Mongo) FindByRemoteIDs(ctx context.Context, remoteID, remoteListID, ownerID string) (*model.Task, error) {
	task, err := m.findOne(ctx, remoteFilter(remoteID, remoteListID, ownerID))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return task, wrap("find by remote ids", err)
}

func (m *Mongo) Get(ctx context.Context, id string) (*model.Task, error) {
	task, err := m.findOne(ctx, bson.M{"_id": id})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return task, wrap("get", err)
}

func (m *Mongo) List(ctx context.Context, ownerID string) ([]*model.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.tasks.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, wrap("list", err)
	}
	var tasks []*model.Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, wrap("list", err)
	}
	return tasks, nil
}

func (m *Mongo) Insert(ctx context.Context, task *model.Task) error {
	_, err := m.tasks.InsertOne(ctx, task)
	return wrap("insert", duplicateErr(err))
}

// Save replaces the document only while its remote ids are still the ones
// read, retrying when a concurrent stamp got in between.
func (m *Mongo) Save(ctx context.Context, task *model.Task) error {
	for attempt := 0; attempt < mongoSaveAttempts; attempt++ {
		stored, err := m.findOne(ctx, bson.M{"_id": task.ID})
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		if err != nil {
			return wrap("save", err)
		}
		keepRemoteIDs(task, stored)

		filter := bson.M{
			"_id":             task.ID,
			"remote_task_id":  storedValue(stored.RemoteTaskID),
			"remote_event_id": storedValue(stored.RemoteEventID),
		}
		res, err := m.tasks.ReplaceOne(ctx, filter, task)
		if err != nil {
			return wrap("save", duplicateErr(err))
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return wrap("save", fmt.Errorf("task %s changed concurrently", task.ID))
}

func (m *Mongo) Delete(ctx context.Context, id string) error {
	_, err := m.tasks.DeleteOne(ctx, bson.M{"_id": id})
	return wrap("delete", err)
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (*model.Task, error) {
	var task model.Task
	if err := m.tasks.FindOne(ctx, filter).Decode(&task); err != nil {
		return nil, err
	}
	return &task, nil
}

func parseDatabase(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", err
	}
	return cs.Database, nil
}

func remoteFilter(remoteID, remoteListID, ownerID string) bson.M {
	return bson.M{
		"owner_id":       ownerID,
		"remote_task_id": remoteID,
		"remote_list_id": remoteListID,
	}
}

// storedValue matches a field as read; empty fields are omitted from the
// document.
func storedValue(v string) any {
	if v == "" {
		return bson.M{"$exists": false}
	}
	return v
}

// duplicateErr maps a unique violation of the remote index to
// ErrDuplicateRemote. Other duplicates, such as an _id collision, are
// returned as they are.
func duplicateErr(err error) error {
	if mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "index: "+mongoRemoteIndex+" ") {
		return fmt.Errorf("%w: %v", ErrDuplicateRemote, err)
	}
	return err
}
