package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "messenger/internal/domain/chat"
	"messenger/internal/domain/user"
)

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("messages")}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "sender_id", Value: 1}},
		},
	})
	return err
}

func (r *MessageRepository) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *MessageRepository) Save(ctx context.Context, message *domainchat.Message) error {
	doc := newMessageDocument(message)
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

func (r *MessageRepository) Delete(ctx context.Context, id domainchat.MessageID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID domainchat.ConversationID) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"conversation_id": string(conversationID)})
	return err
}

func (r *MessageRepository) List(ctx context.Context, conversationID domainchat.ConversationID, before time.Time, limit int) ([]*domainchat.Message, error) {
	filter := bson.M{"conversation_id": string(conversationID)}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before.UnixMilli()}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID domainchat.ConversationID) (*domainchat.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"conversation_id": string(conversationID)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *MessageRepository) Search(ctx context.Context, conversationID domainchat.ConversationID, term string, limit int) ([]*domainchat.Message, error) {
	filter := bson.M{
		"conversation_id": string(conversationID),
		"content":         bson.M{"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) MarkRead(ctx context.Context, ids []domainchat.MessageID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}
	res, err := r.col.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": raw}, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) MarkConversationRead(ctx context.Context, conversationID domainchat.ConversationID, excludeSender user.ID) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{
			"conversation_id": string(conversationID),
			"is_read":         false,
			"sender_id":       bson.M{"$ne": string(excludeSender)},
		},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) MarkSenderRead(ctx context.Context, conversationID domainchat.ConversationID, sender user.ID) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{
			"conversation_id": string(conversationID),
			"is_read":         false,
			"sender_id":       string(sender),
		},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, conversationIDs []domainchat.ConversationID, excludeSender user.ID) (int64, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	raw := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		raw = append(raw, string(id))
	}
	return r.col.CountDocuments(ctx, bson.M{
		"conversation_id": bson.M{"$in": raw},
		"is_read":         false,
		"sender_id":       bson.M{"$ne": string(excludeSender)},
	})
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainchat.Message, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainchat.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Content        string `bson:"content"`
	IsRead         bool   `bson:"is_read"`
	ReplyTo        string `bson:"reply_to,omitempty"`
	CreatedAt      int64  `bson:"created_at"`
	EditedAt       int64  `bson:"edited_at,omitempty"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Content:        m.Content,
		IsRead:         m.IsRead,
		ReplyTo:        string(m.ReplyTo),
		CreatedAt:      m.CreatedAt.UnixMilli(),
		EditedAt:       optionalMilli(m.EditedAt),
	}
}

func (d messageDocument) toAggregate() *domainchat.Message {
	return &domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		SenderID:       user.ID(d.SenderID),
		Content:        d.Content,
		IsRead:         d.IsRead,
		ReplyTo:        domainchat.MessageID(d.ReplyTo),
		CreatedAt:      timestampToTime(d.CreatedAt),
		EditedAt:       optionalTime(d.EditedAt),
	}
}
