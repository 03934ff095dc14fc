// Package sql embeds the run-store migrations and queries.
package sql

import (
	"embed"
)

// Migrations holds the schema files applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/allocate_payment_numbers.sql
var AllocatePaymentNumbers string

//go:embed queries/count_written.sql
var CountWritten string

//go:embed queries/insert_over_under_record.sql
var InsertOverUnderRecord string

//go:embed queries/insert_payment_center.sql
var InsertPaymentCenter string

//go:embed queries/latest_stats.sql
var LatestStats string

//go:embed queries/list_claim_payments.sql
var ListClaimPayments string

//go:embed queries/list_payment_centers.sql
var ListPaymentCenters string

//go:embed queries/load_funding_source.sql
var LoadFundingSource string

//go:embed queries/load_inclusion_criteria.sql
var LoadInclusionCriteria string

//go:embed queries/load_interest_rules.sql
var LoadInterestRules string

//go:embed queries/load_over_under.sql
var LoadOverUnder string

//go:embed queries/load_over_under_records.sql
var LoadOverUnderRecords string

//go:embed queries/load_payment_centers.sql
var LoadPaymentCenters string

//go:embed queries/load_payment_event.sql
var LoadPaymentEvent string

//go:embed queries/load_stats.sql
var LoadStats string

//go:embed queries/persisted_claim_ids.sql
var PersistedClaimIDs string

//go:embed queries/save_stats.sql
var SaveStats string

//go:embed queries/upsert_claim_payment.sql
var UpsertClaimPayment string

//go:embed queries/upsert_over_under_balance.sql
var UpsertOverUnderBalance string
