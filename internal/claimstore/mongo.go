// Package claimstore reads claims from the Mongo claim store. Working-set and
// production claims live in separate collections.
package claimstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/payerr"
)

// Collection names per claim scope.
const (
	CollectionWorkingSet = "claims_ws"
	CollectionProduction = "claims_fin"
)

// CollectionFor returns the collection holding claims of source.
func CollectionFor(source model.ClaimSource) (string, error) {
	switch source {
	case model.SourceWorkingSet:
		return CollectionWorkingSet, nil
	case model.SourceProduction:
		return CollectionProduction, nil
	}
	return "", payerr.New(payerr.KindConfiguration, "claimstore.CollectionFor", "unknown claim source %q", source)
}

// Mongo is a claims.Source backed by a Mongo database.
type Mongo struct {
	client    *mongo.Client
	db        *mongo.Database
	batchSize int32
	retry     payerr.RetryPolicy
	log       zerolog.Logger
}

// Connect opens and pings a client for uri and selects database dbName.
func Connect(ctx context.Context, uri, dbName string, batchSize int, retry payerr.RetryPolicy, log zerolog.Logger) (*Mongo, error) {
	const op = "claimstore.Connect"
	opts := options.Client().ApplyURI(uri).
		SetAppName("payrun").
		SetConnectTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, payerr.Wrap(payerr.KindRepositoryConnection, op, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, payerr.Wrap(payerr.KindRepositoryConnection, op, err)
	}
	log.Info().Str("database", dbName).Msg("connected to claim store")
	return &Mongo{
		client:    client,
		db:        client.Database(dbName),
		batchSize: int32(batchSize),
		retry:     retry,
		log:       log,
	}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Fetch returns every claim of the event from the source collection ordered
// by claim id. A document that fails validation aborts the fetch.
func (m *Mongo) Fetch(ctx context.Context, source model.ClaimSource, paymentEventID string) ([]model.Claim, error) {
	const op = "claimstore.Fetch"
	name, err := CollectionFor(source)
	if err != nil {
		return nil, err
	}
	coll := m.db.Collection(name)
	findOpts := options.Find().SetSort(bson.D{{Key: "claim_id", Value: 1}})
	if m.batchSize > 0 {
		findOpts.SetBatchSize(m.batchSize)
	}

	var out []model.Claim
	err = payerr.Retry(ctx, m.retry, func(ctx context.Context) error {
		out = out[:0]
		cur, err := coll.Find(ctx, bson.M{"payment_event_id": paymentEventID}, findOpts)
		if err != nil {
			return payerr.Classify(op, err, payerr.KindRepository)
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var d claimDoc
			if err := cur.Decode(&d); err != nil {
				return payerr.Wrap(payerr.KindDataIntegrity, op, err).With("collection", name)
			}
			c, err := d.toClaim()
			if err != nil {
				return payerr.Wrap(payerr.KindDataIntegrity, op, err).With("collection", name)
			}
			out = append(out, c)
		}
		return payerr.Classify(op, cur.Err(), payerr.KindRepository)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	if out == nil {
		out = []model.Claim{}
	}
	return out, nil
}
