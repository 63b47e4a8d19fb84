package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

const tokensCollection = "tokens"

var _ ports.TokenLedger = (*TokenLedger)(nil)

// TokenLedger implements ports.TokenLedger using MongoDB. There is at most
// one document per user. Every conditional write filters on the digest the
// caller presented so concurrent writers cannot silently overwrite each other.
type TokenLedger struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewTokenLedger(db *mongo.Database) *TokenLedger {
	return &TokenLedger{coll: db.Collection(tokensCollection), now: time.Now}
}

func capabilityField(class domain.TokenClass) (string, error) {
	if !class.SingleUse() {
		return "", fmt.Errorf("token ledger: %s is not a single-use class", class)
	}
	switch class {
	case domain.TokenEmailVerification:
		return "email_verification", nil
	case domain.TokenPasswordReset:
		return "password_reset", nil
	}
	return "", fmt.Errorf("token ledger: %s is not a single-use class", class)
}

func sessionDoc(s domain.Session) domain.SessionSlot {
	return domain.SessionSlot{
		AccessDigest:     domain.Digest(s.Access.Value),
		AccessExpiresAt:  s.Access.ExpiresAt.UTC(),
		RefreshDigest:    domain.Digest(s.Refresh.Value),
		RefreshExpiresAt: s.Refresh.ExpiresAt.UTC(),
	}
}

func (l *TokenLedger) upsert(ctx context.Context, userID string, set bson.M) (*domain.TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := l.now().UTC()
	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = now
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"user_id": userID, "created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rec domain.TokenRecord
	if err := l.coll.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&rec); err != nil {
		return nil, fmt.Errorf("token ledger upsert: %w", err)
	}
	return &rec, nil
}

func (l *TokenLedger) GetOrCreate(ctx context.Context, userID string) (*domain.TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := l.now().UTC()
	update := bson.M{"$setOnInsert": bson.M{"user_id": userID, "created_at": now, "updated_at": now}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rec domain.TokenRecord
	if err := l.coll.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&rec); err != nil {
		return nil, fmt.Errorf("token ledger get or create: %w", err)
	}
	return &rec, nil
}

func (l *TokenLedger) Find(ctx context.Context, userID string) (*domain.TokenRecord, error) {
	return l.findOne(ctx, bson.M{"user_id": userID})
}

func (l *TokenLedger) FindByRefreshToken(ctx context.Context, value string) (*domain.TokenRecord, error) {
	if value == "" {
		return nil, domain.ErrSessionNotFound
	}
	return l.findOne(ctx, bson.M{"session.refresh_digest": domain.Digest(value)})
}

func (l *TokenLedger) findOne(ctx context.Context, filter bson.M) (*domain.TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rec domain.TokenRecord
	if err := l.coll.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find token record: %w", err)
	}
	return &rec, nil
}

func (l *TokenLedger) SetSession(ctx context.Context, userID string, s domain.Session) (*domain.TokenRecord, error) {
	return l.upsert(ctx, userID, bson.M{"session": sessionDoc(s)})
}

func (l *TokenLedger) RotateSession(ctx context.Context, userID, presentedRefresh string, next domain.Session) (*domain.TokenRecord, error) {
	if presentedRefresh == "" {
		return nil, domain.ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"user_id":                userID,
		"session.refresh_digest": domain.Digest(presentedRefresh),
	}
	update := bson.M{"$set": bson.M{"session": sessionDoc(next), "updated_at": l.now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec domain.TokenRecord
	if err := l.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	return &rec, nil
}

func (l *TokenLedger) SetCapability(ctx context.Context, userID string, class domain.TokenClass, token domain.IssuedToken) error {
	field, err := capabilityField(class)
	if err != nil {
		return err
	}
	_, err = l.upsert(ctx, userID, bson.M{field: domain.CapabilitySlot{
		Digest:    domain.Digest(token.Value),
		ExpiresAt: token.ExpiresAt.UTC(),
	}})
	return err
}

func (l *TokenLedger) ConsumeCapability(ctx context.Context, userID string, class domain.TokenClass, presented string) (bool, error) {
	field, err := capabilityField(class)
	if err != nil {
		return false, err
	}
	if presented == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := l.now().UTC()
	filter := bson.M{
		"user_id":             userID,
		field + ".digest":     domain.Digest(presented),
		field + ".expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$unset": bson.M{field: ""},
		"$set":   bson.M{"updated_at": now},
	}

	res, err := l.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("consume %s token: %w", class, err)
	}
	return res.ModifiedCount > 0, nil
}

func (l *TokenLedger) ClearSession(ctx context.Context, presentedRefresh string) error {
	if presentedRefresh == "" {
		return domain.ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := l.coll.UpdateOne(ctx,
		bson.M{"session.refresh_digest": domain.Digest(presentedRefresh)},
		bson.M{"$unset": bson.M{"session": ""}, "$set": bson.M{"updated_at": l.now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (l *TokenLedger) DeleteAll(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := l.coll.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	return nil
}

// EnsureIndexes creates the one-record-per-user and refresh lookup indexes.
func (l *TokenLedger) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_user_id")},
		{Keys: bson.D{{Key: "session.refresh_digest", Value: 1}}, Options: options.Index().SetSparse(true).SetName("session_refresh_digest")},
	}
	_, err := l.coll.Indexes().CreateMany(ctx, indexes)
	return err
}
