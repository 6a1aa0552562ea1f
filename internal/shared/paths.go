package shared

import "github.com/jntims/jntims/internal/platform/docstore"

// Collection names of the document layout.
const (
	CompaniesCollection  = "companies"
	BatchesCollection    = "arrivalDates"
	ItemsCollection      = "stockItems"
	PaymentsCollection   = "payments"
	SalesCollection      = "sales"
	TotalsCollection     = "totals"
	GlobalTotalsID       = "global"
	IdempotencyNamespace = "idempotency"
)

// CompaniesPath is the top-level company collection.
func CompaniesPath() docstore.Path { return docstore.Collection(CompaniesCollection) }

// CompanyPath addresses one company.
func CompanyPath(companyID string) docstore.Path { return CompaniesPath().Doc(companyID) }

// BatchesPath is the arrival batch collection of a company.
func BatchesPath(companyID string) docstore.Path {
	return CompanyPath(companyID).Collection(BatchesCollection)
}

// BatchPath addresses one arrival batch.
func BatchPath(companyID, batchID string) docstore.Path { return BatchesPath(companyID).Doc(batchID) }

// ItemsPath is the stock item collection of a batch.
func ItemsPath(companyID, batchID string) docstore.Path {
	return BatchPath(companyID, batchID).Collection(ItemsCollection)
}

// ItemPath addresses one stock item.
func ItemPath(companyID, batchID, itemID string) docstore.Path {
	return ItemsPath(companyID, batchID).Doc(itemID)
}

// PaymentsPath is the payment collection of a company.
func PaymentsPath(companyID string) docstore.Path {
	return CompanyPath(companyID).Collection(PaymentsCollection)
}

// PaymentPath addresses one payment record.
func PaymentPath(companyID, paymentID string) docstore.Path {
	return PaymentsPath(companyID).Doc(paymentID)
}

// SalesPath is the append-only sale event log.
func SalesPath() docstore.Path { return docstore.Collection(SalesCollection) }

// GlobalTotalsPath is the revenue/profit singleton.
func GlobalTotalsPath() docstore.Path {
	return docstore.Collection(TotalsCollection).Doc(GlobalTotalsID)
}
