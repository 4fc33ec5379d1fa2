package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/train-seat-reservation/internal/database"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// Tickets stores ticket records with the ticket ID as _id, which makes a
// repeated Create a duplicate key error.
type Tickets struct {
	coll *mongo.Collection
}

func NewTickets(db *mongo.Database) *Tickets {
	return &Tickets{coll: db.Collection(database.TicketsCollection)}
}

func (r *Tickets) Create(ctx context.Context, t *model.TicketRecord) error {
	_, err := r.coll.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (r *Tickets) GetByID(ctx context.Context, id string) (*model.TicketRecord, error) {
	var t model.TicketRecord
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.PurchasedAt = t.PurchasedAt.UTC()
	return &t, nil
}

func (r *Tickets) ListByPurchaser(ctx context.Context, purchaserID string) ([]model.TicketRecord, error) {
	cur, err := r.coll.Find(ctx, bson.M{"purchaserId": purchaserID},
		options.Find().SetSort(bson.D{{Key: "purchasedAt", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := make([]model.TicketRecord, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].PurchasedAt = out[i].PurchasedAt.UTC()
	}
	return out, nil
}
