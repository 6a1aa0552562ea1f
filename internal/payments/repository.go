package payments

import (
	"context"

	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/shared"
)

// Repository persists payment records and the company paid counter.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs the repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// DecodePayment converts a stored payment document.
func DecodePayment(doc docstore.Document) Payment {
	return Payment{
		ID:          doc.ID(),
		CompanyID:   doc.String(FieldCompanyID),
		CheckNumber: doc.String(FieldCheckNumber),
		AmountPaid:  money.FromCents(doc.Int(FieldAmountPaid)),
		CreatedAt:   doc.Timestamp(),
	}
}

func paymentFields(p Payment) docstore.Fields {
	return docstore.Fields{
		FieldCompanyID:          p.CompanyID,
		FieldCheckNumber:        p.CheckNumber,
		FieldAmountPaid:         money.Cents(p.AmountPaid),
		docstore.TimestampField: p.CreatedAt,
	}
}

// Company loads the company balance fields.
func (r *Repository) Company(ctx context.Context, companyID string) (companies.Company, error) {
	doc, err := r.store.Get(ctx, shared.CompanyPath(companyID))
	if err != nil {
		return companies.Company{}, shared.StoreError("get company", "company", companyID, err)
	}
	return companies.DecodeCompany(doc), nil
}

// ChargePaid raises cumulativePaid by amountCents inside one read-modify-write
// that refuses to pass totalPayable.
func (r *Repository) ChargePaid(ctx context.Context, companyID string, amountCents int64) (companies.Company, error) {
	doc, err := r.store.Update(ctx, shared.CompanyPath(companyID), func(cur docstore.Document) (docstore.Fields, error) {
		paid := cur.Int(companies.FieldCumulativePaid)
		remaining := cur.Int(companies.FieldTotalPayable) - paid
		if amountCents > remaining {
			return nil, &shared.OverpaymentError{
				CompanyID: companyID,
				Amount:    money.FromCents(amountCents),
				Remaining: money.FromCents(remaining),
			}
		}
		return docstore.Fields{companies.FieldCumulativePaid: paid + amountCents}, nil
	})
	if err != nil {
		return companies.Company{}, shared.StoreError("charge paid", "company", companyID, err)
	}
	return companies.DecodeCompany(doc), nil
}

// AdjustPaid atomically moves cumulativePaid by delta cents.
func (r *Repository) AdjustPaid(ctx context.Context, companyID string, deltaCents int64) error {
	err := r.store.Increment(ctx, shared.CompanyPath(companyID), map[string]int64{companies.FieldCumulativePaid: deltaCents})
	return shared.StoreError("adjust paid", "company", companyID, err)
}

// Insert stores a new payment record.
func (r *Repository) Insert(ctx context.Context, p Payment) (Payment, error) {
	doc, err := r.store.Create(ctx, shared.PaymentsPath(p.CompanyID), paymentFields(p))
	if err != nil {
		return Payment{}, shared.StoreError("insert payment", "payment", "", err)
	}
	return DecodePayment(doc), nil
}

// Put writes a payment record at its own id.
func (r *Repository) Put(ctx context.Context, p Payment) error {
	err := r.store.Set(ctx, shared.PaymentPath(p.CompanyID, p.ID), paymentFields(p))
	return shared.StoreError("put payment", "payment", p.ID, err)
}

// Get loads one payment.
func (r *Repository) Get(ctx context.Context, companyID, paymentID string) (Payment, error) {
	doc, err := r.store.Get(ctx, shared.PaymentPath(companyID, paymentID))
	if err != nil {
		return Payment{}, shared.StoreError("get payment", "payment", paymentID, err)
	}
	return DecodePayment(doc), nil
}

// Delete removes one payment record.
func (r *Repository) Delete(ctx context.Context, companyID, paymentID string) error {
	err := r.store.Delete(ctx, shared.PaymentPath(companyID, paymentID))
	return shared.StoreError("delete payment", "payment", paymentID, err)
}

// List returns the payments of a company newest first.
func (r *Repository) List(ctx context.Context, companyID string) ([]Payment, error) {
	docs, err := r.store.List(ctx, shared.PaymentsPath(companyID), docstore.Query{Order: docstore.Descending})
	if err != nil {
		return nil, shared.StoreError("list payments", "company", companyID, err)
	}
	out := make([]Payment, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DecodePayment(doc))
	}
	return out, nil
}
