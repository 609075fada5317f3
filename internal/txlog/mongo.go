package txlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/congo-pay/bankee/internal/apperr"
)

// DefaultCollection is the collection transaction records are stored in.
const DefaultCollection = "transactions"

// MongoStore keeps transaction records in a MongoDB collection. No
// multi-document atomicity is used; every state change is a single
// conditional document update.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore binds a store to collection in db.
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStore{coll: db.Collection(collection)}
}

// EnsureIndexes creates the indexes used by history listing and the reconciler scan.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "walletRef", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("ensure transaction indexes: %w", classifyMongo(err))
	}
	return nil
}

type document struct {
	ID            string                `bson:"_id"`
	UserID        int64                 `bson:"userId"`
	Type          string                `bson:"type"`
	Amount        primitive.Decimal128  `bson:"amount"`
	Status        string                `bson:"status"`
	FromAccountID *int64                `bson:"fromAccountId,omitempty"`
	ToAccountID   *int64                `bson:"toAccountId,omitempty"`
	FromWalletID  *int64                `bson:"fromWalletId,omitempty"`
	ToWalletID    *int64                `bson:"toWalletId,omitempty"`
	WalletRef     string                `bson:"walletRef,omitempty"`
	BalanceBefore *primitive.Decimal128 `bson:"balanceBefore,omitempty"`
	BalanceAfter  *primitive.Decimal128 `bson:"balanceAfter,omitempty"`
	FailureReason string                `bson:"failureReason,omitempty"`
	ClaimedAt     *time.Time            `bson:"claimedAt,omitempty"`
	CreatedAt     time.Time             `bson:"createdAt"`
	UpdatedAt     time.Time             `bson:"updatedAt"`
}

// Append implements Store.
func (s *MongoStore) Append(ctx context.Context, rec *Record) error {
	stamp(rec)
	doc, err := toDocument(*rec)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, classifyMongo(err))
	}
	return nil
}

// Find implements Store.
func (s *MongoStore) Find(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	filter := bson.M{}
	if f.UserID != 0 {
		filter["userId"] = f.UserID
	}
	if f.Type != "" {
		filter["type"] = string(f.Type)
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		created := bson.M{}
		if !f.Since.IsZero() {
			created["$gte"] = f.Since.UTC()
		}
		if !f.Until.IsZero() {
			created["$lte"] = f.Until.UTC()
		}
		filter["createdAt"] = created
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("count records: %w", classifyMongo(err))
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(f.skip())).
		SetLimit(int64(f.Limit))
	records, err := s.query(ctx, filter, opts)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Due implements Store.
func (s *MongoStore) Due(ctx context.Context, q DueQuery) ([]Record, error) {
	filter := bson.M{
		"type": string(TypeWalletFund),
		"$or": bson.A{
			bson.M{"status": string(StatusPending), "createdAt": bson.M{"$lte": q.CreatedBefore.UTC()}},
			bson.M{"status": string(StatusProcessing), "claimedAt": bson.M{"$lte": q.ClaimedBefore.UTC()}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return s.query(ctx, filter, opts)
}

// Claim implements Store.
func (s *MongoStore) Claim(ctx context.Context, id string, at, staleBefore time.Time) (Record, bool, error) {
	filter := bson.M{
		"_id":  id,
		"type": string(TypeWalletFund),
		"$or": bson.A{
			bson.M{"status": string(StatusPending)},
			bson.M{"status": string(StatusProcessing), "claimedAt": bson.M{"$lte": staleBefore.UTC()}},
		},
	}
	update := bson.M{"$set": bson.M{
		"status":    string(StatusProcessing),
		"claimedAt": at.UTC(),
		"updatedAt": at.UTC(),
	}}

	var doc document
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("claim record %s: %w", id, classifyMongo(err))
	}
	rec, err := fromDocument(doc)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// UpdateStatus implements Store.
func (s *MongoStore) UpdateStatus(ctx context.Context, id string, to Status, reason string) error {
	if to != StatusCompleted && to != StatusFailed {
		return apperr.Invalid("cannot finalize record with status %q", to)
	}

	set := bson.M{"status": string(to), "updatedAt": time.Now().UTC()}
	if reason != "" {
		set["failureReason"] = reason
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(StatusProcessing)},
		bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, classifyMongo(err))
	}
	if res.MatchedCount == 1 {
		return nil
	}

	var current struct {
		Status string `bson:"status"`
	}
	err = s.coll.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"status": 1})).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("record %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read record %s: %w", id, classifyMongo(err))
	}
	if Status(current.Status) == to {
		return nil
	}
	return fmt.Errorf("%w: record %s is %s", apperr.ErrConflict, id, current.Status)
}

func (s *MongoStore) query(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Record, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", classifyMongo(err))
	}
	defer cur.Close(ctx)

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode records: %w", classifyMongo(err))
	}
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func toDocument(rec Record) (document, error) {
	amount, err := toDecimal128(rec.Amount)
	if err != nil {
		return document{}, err
	}
	doc := document{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Type:          string(rec.Type),
		Amount:        amount,
		Status:        string(rec.Status),
		FromAccountID: rec.FromAccountID,
		ToAccountID:   rec.ToAccountID,
		FromWalletID:  rec.FromWalletID,
		ToWalletID:    rec.ToWalletID,
		WalletRef:     rec.WalletRef,
		FailureReason: rec.FailureReason,
		ClaimedAt:     rec.ClaimedAt,
		CreatedAt:     rec.CreatedAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
	if rec.BalanceBefore.Valid {
		v, err := toDecimal128(rec.BalanceBefore.Decimal)
		if err != nil {
			return document{}, err
		}
		doc.BalanceBefore = &v
	}
	if rec.BalanceAfter.Valid {
		v, err := toDecimal128(rec.BalanceAfter.Decimal)
		if err != nil {
			return document{}, err
		}
		doc.BalanceAfter = &v
	}
	return doc, nil
}

func fromDocument(doc document) (Record, error) {
	amount, err := decimal.NewFromString(doc.Amount.String())
	if err != nil {
		return Record{}, fmt.Errorf("decode amount of %s: %w", doc.ID, err)
	}
	rec := Record{
		ID:            doc.ID,
		UserID:        doc.UserID,
		Type:          Type(doc.Type),
		Amount:        amount,
		Status:        Status(doc.Status),
		FromAccountID: doc.FromAccountID,
		ToAccountID:   doc.ToAccountID,
		FromWalletID:  doc.FromWalletID,
		ToWalletID:    doc.ToWalletID,
		WalletRef:     doc.WalletRef,
		FailureReason: doc.FailureReason,
		ClaimedAt:     doc.ClaimedAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.BalanceBefore != nil {
		v, err := decimal.NewFromString(doc.BalanceBefore.String())
		if err != nil {
			return Record{}, fmt.Errorf("decode balanceBefore of %s: %w", doc.ID, err)
		}
		rec.BalanceBefore = decimal.NewNullDecimal(v)
	}
	if doc.BalanceAfter != nil {
		v, err := decimal.NewFromString(doc.BalanceAfter.String())
		if err != nil {
			return Record{}, fmt.Errorf("decode balanceAfter of %s: %w", doc.ID, err)
		}
		rec.BalanceAfter = decimal.NewNullDecimal(v)
	}
	return rec, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, apperr.Invalid("amount %s not representable", d.String())
	}
	return v, nil
}

func classifyMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w (%v)", apperr.Conflict("record already exists"), err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	default:
		return err
	}
}
