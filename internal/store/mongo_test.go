package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/pathakanu/nhacnho/internal/model"
)

func TestWindowFilter(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 10, 15, 2, 0, 0, 500, time.UTC)
	to := from.Add(time.Hour)

	cases := []struct {
		name string
		w    Window
		want bson.M
	}{
		{
			name: "exclusive",
			w:    Window{From: from, To: to},
			want: bson.M{"$gt": from.Truncate(time.Second), "$lte": to.Truncate(time.Second)},
		},
		{
			name: "inclusive",
			w:    Window{From: from, FromInclusive: true, To: to},
			want: bson.M{"$gte": from.Truncate(time.Second), "$lte": to.Truncate(time.Second)},
		},
		{
			name: "unbounded",
			w:    Window{Unbounded: true, To: to},
			want: bson.M{"$lte": to.Truncate(time.Second)},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := windowFilter(tc.w, model.StatusPending)
			assert.Equal(t, model.StatusPending, got["status"])
			assert.Equal(t, tc.want, got["dueAt"])
		})
	}
}

func TestKeyFilterNormalizesDueAt(t *testing.T) {
	t.Parallel()

	local := time.FixedZone("UTC+7", 7*3600)
	due := time.Date(2024, 10, 15, 9, 0, 0, 999, local)
	got := keyFilter(normalizeKey(Key{Owner: "a", Label: "Họp", DueAt: due}))

	assert.Equal(t, "a", got["owner"])
	assert.Equal(t, "Họp", got["label"])
	assert.Equal(t, time.Date(2024, 10, 15, 2, 0, 0, 0, time.UTC), got["dueAt"])
}

func reminderDoc(id string, due time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "owner", Value: "a"},
		{Key: "label", Value: "Họp"},
		{Key: "dueAt", Value: due},
		{Key: "recurrence", Value: string(model.RecurrenceNone)},
		{Key: "status", Value: string(model.StatusPending)},
	}
}

func TestMongoStoreAgainstMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	due := time.Date(2024, 10, 15, 2, 0, 0, 0, time.UTC)
	key := Key{Owner: "a", Label: "Họp", DueAt: due}

	mt.Run("new store creates indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		_, err := NewMongoStore(ctx, mt.DB)
		require.NoError(mt, err)
	})

	mt.Run("insert assigns id", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		r := &model.Reminder{Owner: "a", Label: "Họp", DueAt: due.Add(700 * time.Millisecond)}
		id, err := s.Insert(ctx, r)
		require.NoError(mt, err)
		assert.NotEmpty(mt, id)
		assert.Equal(mt, model.StatusPending, r.Status)
		assert.True(mt, r.DueAt.Equal(due))
	})

	mt.Run("insert rejects incomplete", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		_, err := s.Insert(ctx, &model.Reminder{Owner: "a"})
		require.Error(mt, err)
	})

	mt.Run("find one", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, reminderDoc("r1", due)))

		got, err := s.FindOneByKey(ctx, key)
		require.NoError(mt, err)
		assert.Equal(mt, "r1", got.ID)
		assert.True(mt, got.DueAt.Equal(due))
	})

	mt.Run("find one miss", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := s.FindOneByKey(ctx, key)
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("delete", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		deleted, err := s.DeleteByKey(ctx, key)
		require.NoError(mt, err)
		assert.True(mt, deleted)

		deleted, err = s.DeleteByKey(ctx, key)
		require.NoError(mt, err)
		assert.False(mt, deleted)
	})

	mt.Run("update due time", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		next := due.Add(24 * time.Hour)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: reminderDoc("r1", next)}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
		)

		updated, err := s.UpdateDueAtByKey(ctx, key, next)
		require.NoError(mt, err)
		assert.True(mt, updated.DueAt.Equal(next))

		_, err = s.UpdateDueAtByKey(ctx, key, next)
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("find due window", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			reminderDoc("r1", due),
			reminderDoc("r2", due.Add(time.Minute)),
		))

		got, err := s.FindDueWindow(ctx, Window{Unbounded: true, To: due.Add(time.Hour)}, model.StatusPending)
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, "r1", got[0].ID)
		assert.Equal(mt, "r2", got[1].ID)
	})

	mt.Run("save", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		r := &model.Reminder{ID: "r1", DueAt: due, Status: model.StatusSent}
		require.NoError(mt, s.Save(ctx, r))
		assert.ErrorIs(mt, s.Save(ctx, r), ErrNotFound, "a deleted reminder is not recreated")
		require.Error(mt, s.Save(ctx, &model.Reminder{}))
	})

	mt.Run("mark notice", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		require.NoError(mt, s.MarkNotice(ctx, "r1", model.NoticeSoon, due))
		err := s.MarkNotice(ctx, "r1", model.NoticeFar, due.Add(time.Hour))
		assert.ErrorIs(mt, err, ErrNotFound, "a moved reminder keeps its marker")
	})

	mt.Run("server error", func(mt *mtest.T) {
		s := &MongoStore{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad filter",
		}))

		err := s.MarkNotice(ctx, "r1", model.NoticeSoon, due)
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, ErrNotFound)
	})
}
