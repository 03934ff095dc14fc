// Package backup writes parquet snapshots of the data a final run reads and
// writes, optionally uploading them to an object store.
package backup

import (
	"strconv"

	"github.com/goccy/go-json"

	"github.com/gyeh/payrun/internal/model"
)

// Snapshot collection names.
const (
	CollectionClaims         = "claims"
	CollectionClaimPayments  = "claim_payments"
	CollectionPaymentCenters = "payment_centers"
)

// MetadataCollection is the parquet key-value metadata key naming the
// snapshot's collection.
const MetadataCollection = "payrun.collection"

// Row is one snapshotted entity. Payload is the entity's JSON encoding.
type Row struct {
	Collection     string `parquet:"collection,dict"`
	PaymentEventID string `parquet:"payment_event_id,dict"`
	Key            string `parquet:"key"`
	Payload        string `parquet:"payload,zstd"`
}

func rows[T any](collection, eventID string, items []T, key func(T) string) ([]Row, error) {
	out := make([]Row, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		out = append(out, Row{Collection: collection, PaymentEventID: eventID, Key: key(it), Payload: string(b)})
	}
	return out, nil
}

// ClaimRows snapshots fetched claims keyed by claim id.
func ClaimRows(eventID string, claims []model.Claim) ([]Row, error) {
	return rows(CollectionClaims, eventID, claims, func(c model.Claim) string { return c.ClaimID })
}

// ClaimPaymentRows snapshots claim payments keyed by parent id.
func ClaimPaymentRows(eventID string, payments []model.ClaimPayment) ([]Row, error) {
	return rows(CollectionClaimPayments, eventID, payments, func(p model.ClaimPayment) string { return p.ClaimID })
}

// PaymentCenterRows snapshots PaymentCenters keyed by id.
func PaymentCenterRows(eventID string, centers []model.PaymentCenter) ([]Row, error) {
	return rows(CollectionPaymentCenters, eventID, centers, func(c model.PaymentCenter) string {
		return strconv.FormatInt(c.PaymentCenterID, 10)
	})
}
