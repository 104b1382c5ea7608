package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pathakanu/nhacnho/internal/model"
)

// ReminderCollection is the collection reminders live in.
const ReminderCollection = "reminders"

// MongoStore keeps reminders as MongoDB documents.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore binds to the reminders collection of db and ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{coll: db.Collection(ReminderCollection)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndexes creates the key lookup and due-scan indexes.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "label", Value: 1}, {Key: "dueAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "dueAt", Value: 1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Insert saves a new reminder document and returns its ID.
func (s *MongoStore) Insert(ctx context.Context, r *model.Reminder) (string, error) {
	prepareInsert(r)
	if err := validate(r); err != nil {
		return "", err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, r); err != nil {
		return "", fmt.Errorf("insert reminder: %w", err)
	}
	return r.ID, nil
}

// FindOneByKey returns one reminder matching key or ErrNotFound.
func (s *MongoStore) FindOneByKey(ctx context.Context, key Key) (*model.Reminder, error) {
	var r model.Reminder
	err := s.coll.FindOne(ctx, keyFilter(normalizeKey(key))).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reminder: %w", err)
	}
	return &r, nil
}

// DeleteByKey removes one reminder matching key.
func (s *MongoStore) DeleteByKey(ctx context.Context, key Key) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, keyFilter(normalizeKey(key)))
	if err != nil {
		return false, fmt.Errorf("delete reminder: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// UpdateDueAtByKey moves one reminder matching key to newDueAt.
func (s *MongoStore) UpdateDueAtByKey(ctx context.Context, key Key, newDueAt time.Time) (*model.Reminder, error) {
	update := bson.M{"$set": bson.M{
		"dueAt":     instant(newDueAt),
		"updatedAt": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var r model.Reminder
	err := s.coll.FindOneAndUpdate(ctx, keyFilter(normalizeKey(key)), update, opts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update reminder due time: %w", err)
	}
	return &r, nil
}

// FindDueWindow lists reminders with the given status whose due time is in w,
// earliest first.
func (s *MongoStore) FindDueWindow(ctx context.Context, w Window, status model.Status) ([]model.Reminder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "dueAt", Value: 1}})
	cursor, err := s.coll.Find(ctx, windowFilter(w, status), opts)
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var reminders []model.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		return nil, fmt.Errorf("decode due reminders: %w", err)
	}
	return reminders, nil
}

// Save writes status and due time of r back to its document.
func (s *MongoStore) Save(ctx context.Context, r *model.Reminder) error {
	if r.ID == "" {
		return errors.New("store: save requires an id")
	}
	r.DueAt = instant(r.DueAt)
	r.UpdatedAt = time.Now().UTC()

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": r.ID}, bson.M{"$set": bson.M{
		"status":    r.Status,
		"dueAt":     r.DueAt,
		"updatedAt": r.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("save reminder %s: %w", r.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotice sets the marker field for n on the document with id, provided it
// is still due at dueAt.
func (s *MongoStore) MarkNotice(ctx context.Context, id string, n model.Notice, dueAt time.Time) error {
	field := "soonNoticeFor"
	if n == model.NoticeFar {
		field = "farNoticeFor"
	}
	dueAt = instant(dueAt)

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "dueAt": dueAt},
		bson.M{"$set": bson.M{field: dueAt, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mark %s notice %s: %w", n, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func keyFilter(key Key) bson.M {
	return bson.M{"owner": key.Owner, "label": key.Label, "dueAt": key.DueAt}
}

func windowFilter(w Window, status model.Status) bson.M {
	due := bson.M{"$lte": instant(w.To)}
	if !w.Unbounded {
		op := "$gt"
		if w.FromInclusive {
			op = "$gte"
		}
		due[op] = instant(w.From)
	}
	return bson.M{"status": status, "dueAt": due}
}
