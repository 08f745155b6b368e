package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"messenger/internal/domain/user"
)

// UserReader is a read-only view over the users collection. Account
// writes belong to the identity service.
type UserReader struct {
	col *mongo.Collection
}

func NewUserReader(db *mongo.Database) *UserReader {
	return &UserReader{col: db.Collection("users")}
}

func (r *UserReader) ByID(ctx context.Context, id user.ID) (*user.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return doc.toUser(), nil
}

func (r *UserReader) ByIDs(ctx context.Context, ids []user.ID) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}
	cursor, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": raw}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*user.User
	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toUser())
	}
	return out, cursor.Err()
}

type userDocument struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Verified  bool   `bson:"verified"`
	AvatarURL string `bson:"avatar_url,omitempty"`
}

func (d userDocument) toUser() *user.User {
	return &user.User{
		ID:        user.ID(d.ID),
		Name:      d.Name,
		Verified:  d.Verified,
		AvatarURL: d.AvatarURL,
	}
}
