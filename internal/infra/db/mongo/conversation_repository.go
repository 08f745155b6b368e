package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "messenger/internal/domain/chat"
	"messenger/internal/domain/user"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("conversations")}
}

// EnsureIndexes creates the unique pair index and the listing index.
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_a", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_b", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	})
	return err
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ByPair(ctx context.Context, a, b user.ID) (*domainchat.Conversation, error) {
	first, second, err := domainchat.NormalizePair(a, b)
	if err != nil {
		return nil, err
	}
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"pair_key": pairKey(first, second)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) Save(ctx context.Context, conversation *domainchat.Conversation) error {
	doc := newConversationDocument(conversation)
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	if mongo.IsDuplicateKeyError(err) {
		return domainchat.ErrPairTaken
	}
	return err
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID user.ID, page, limit int) ([]*domainchat.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"user_a": string(userID)},
		bson.M{"user_b": string(userID)},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		opts = opts.SetSkip(int64((page - 1) * limit)).SetLimit(int64(limit))
	}
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainchat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

func (r *ConversationRepository) Delete(ctx context.Context, id domainchat.ConversationID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func pairKey(a, b user.ID) string {
	return string(a) + "|" + string(b)
}

type conversationDocument struct {
	ID              string `bson:"_id"`
	PairKey         string `bson:"pair_key"`
	UserA           string `bson:"user_a"`
	UserB           string `bson:"user_b"`
	ContextRef      string `bson:"context_ref,omitempty"`
	// No omitempty on the cache fields: a clearing Save must $set the
	// zero values, or the stale cache survives in the stored document.
	LastMessageText string `bson:"last_message_text"`
	LastMessageAt   int64  `bson:"last_message_at"`
	UserALastReadAt int64  `bson:"user_a_last_read_at,omitempty"`
	UserBLastReadAt int64  `bson:"user_b_last_read_at,omitempty"`
	CreatedAt       int64  `bson:"created_at"`
	UpdatedAt       int64  `bson:"updated_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	return conversationDocument{
		ID:              string(c.ID),
		PairKey:         pairKey(c.UserA, c.UserB),
		UserA:           string(c.UserA),
		UserB:           string(c.UserB),
		ContextRef:      c.ContextRef,
		LastMessageText: c.LastMessageText,
		LastMessageAt:   optionalMilli(c.LastMessageAt),
		UserALastReadAt: optionalMilli(c.UserALastReadAt),
		UserBLastReadAt: optionalMilli(c.UserBLastReadAt),
		CreatedAt:       c.CreatedAt.UnixMilli(),
		UpdatedAt:       c.UpdatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	return &domainchat.Conversation{
		ID:              domainchat.ConversationID(d.ID),
		UserA:           user.ID(d.UserA),
		UserB:           user.ID(d.UserB),
		ContextRef:      d.ContextRef,
		LastMessageText: d.LastMessageText,
		LastMessageAt:   optionalTime(d.LastMessageAt),
		UserALastReadAt: optionalTime(d.UserALastReadAt),
		UserBLastReadAt: optionalTime(d.UserBLastReadAt),
		CreatedAt:       timestampToTime(d.CreatedAt),
		UpdatedAt:       timestampToTime(d.UpdatedAt),
	}
}

func optionalMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func optionalTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return timestampToTime(ms)
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
