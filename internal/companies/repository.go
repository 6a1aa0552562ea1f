package companies

import (
	"context"
	"errors"
	"time"

	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/shared"
)

// Repository persists companies and their arrival batches.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs the repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// DecodeCompany converts a stored company document.
func DecodeCompany(doc docstore.Document) Company {
	return Company{
		ID:             doc.ID(),
		Name:           doc.String(FieldName),
		CumulativePaid: money.FromCents(doc.Int(FieldCumulativePaid)),
		TotalPayable:   money.FromCents(doc.Int(FieldTotalPayable)),
		CreatedAt:      doc.Timestamp(),
		Version:        doc.Version,
	}
}

// DecodeBatch converts a stored batch document.
func DecodeBatch(doc docstore.Document) Batch {
	status := BatchStatus(doc.String(FieldStatus))
	if !status.Valid() {
		status = BatchActive
	}
	return Batch{
		ID:             doc.ID(),
		CompanyID:      doc.String(FieldCompanyID),
		Date:           doc.String(FieldDate),
		DeclaredAmount: money.FromCents(doc.Int(FieldAmount)),
		Status:         status,
		Manual:         doc.Bool(FieldManual),
		CreatedAt:      doc.Timestamp(),
	}
}

// InsertCompany stores a new company with zero balances.
func (r *Repository) InsertCompany(ctx context.Context, name string, now time.Time) (Company, error) {
	doc, err := r.store.Create(ctx, shared.CompaniesPath(), docstore.Fields{
		FieldName:               name,
		FieldCumulativePaid:     int64(0),
		FieldTotalPayable:       int64(0),
		docstore.TimestampField: now,
	})
	if err != nil {
		return Company{}, shared.StoreError("insert company", "company", "", err)
	}
	return DecodeCompany(doc), nil
}

// GetCompany loads one company.
func (r *Repository) GetCompany(ctx context.Context, companyID string) (Company, error) {
	doc, err := r.store.Get(ctx, shared.CompanyPath(companyID))
	if err != nil {
		return Company{}, shared.StoreError("get company", "company", companyID, err)
	}
	return DecodeCompany(doc), nil
}

// ListCompanies returns companies oldest first.
func (r *Repository) ListCompanies(ctx context.Context) ([]Company, error) {
	docs, err := r.store.List(ctx, shared.CompaniesPath(), docstore.Query{})
	if err != nil {
		return nil, shared.StoreError("list companies", "company", "", err)
	}
	out := make([]Company, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DecodeCompany(doc))
	}
	return out, nil
}

// CompanyIDs returns the set of existing company ids.
func (r *Repository) CompanyIDs(ctx context.Context) (map[string]struct{}, error) {
	list, err := r.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(list))
	for _, c := range list {
		ids[c.ID] = struct{}{}
	}
	return ids, nil
}

// AdjustPayable atomically moves totalPayable by delta cents.
func (r *Repository) AdjustPayable(ctx context.Context, companyID string, deltaCents int64) error {
	err := r.store.Increment(ctx, shared.CompanyPath(companyID), map[string]int64{FieldTotalPayable: deltaCents})
	return shared.StoreError("adjust payable", "company", companyID, err)
}

// InsertBatch stores a new Active batch. It does not touch totalPayable.
func (r *Repository) InsertBatch(ctx context.Context, companyID string, in BatchInput, now time.Time) (Batch, error) {
	doc, err := r.store.Create(ctx, shared.BatchesPath(companyID), docstore.Fields{
		FieldCompanyID:          companyID,
		FieldDate:               in.Date,
		FieldAmount:             money.Cents(in.DeclaredAmount),
		FieldStatus:             string(BatchActive),
		FieldManual:             in.Manual,
		docstore.TimestampField: now,
	})
	if err != nil {
		return Batch{}, shared.StoreError("insert batch", "batch", "", err)
	}
	return DecodeBatch(doc), nil
}

// GetBatch loads one batch.
func (r *Repository) GetBatch(ctx context.Context, companyID, batchID string) (Batch, error) {
	doc, err := r.store.Get(ctx, shared.BatchPath(companyID, batchID))
	if err != nil {
		return Batch{}, shared.StoreError("get batch", "batch", batchID, err)
	}
	return DecodeBatch(doc), nil
}

// ListBatches returns the batches of a company newest first, optionally by status.
func (r *Repository) ListBatches(ctx context.Context, companyID string, status BatchStatus) ([]Batch, error) {
	q := docstore.Query{Order: docstore.Descending}
	if status != "" {
		q.Where = []docstore.Filter{{Field: FieldStatus, Value: string(status)}}
	}
	docs, err := r.store.List(ctx, shared.BatchesPath(companyID), q)
	if err != nil {
		return nil, shared.StoreError("list batches", "company", companyID, err)
	}
	out := make([]Batch, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DecodeBatch(doc))
	}
	return out, nil
}

// SetBatchStatus merges the status field.
func (r *Repository) SetBatchStatus(ctx context.Context, companyID, batchID string, status BatchStatus) error {
	err := r.store.Merge(ctx, shared.BatchPath(companyID, batchID), docstore.Fields{FieldStatus: string(status)})
	return shared.StoreError("set batch status", "batch", batchID, err)
}

// MarkBatchSold flips an Active batch to Sold provided it is still at the
// version the caller observed. It returns ErrBatchChanged otherwise.
func (r *Repository) MarkBatchSold(ctx context.Context, companyID, batchID string, version int64) error {
	_, err := r.store.Update(ctx, shared.BatchPath(companyID, batchID), func(cur docstore.Document) (docstore.Fields, error) {
		if cur.Version != version {
			return nil, ErrBatchChanged
		}
		if BatchStatus(cur.String(FieldStatus)) == BatchSold {
			return nil, nil
		}
		return docstore.Fields{FieldStatus: string(BatchSold)}, nil
	})
	if errors.Is(err, ErrBatchChanged) {
		return err
	}
	return shared.StoreError("mark batch sold", "batch", batchID, err)
}

// Children lists the document paths directly under collection.
func (r *Repository) Children(ctx context.Context, collection docstore.Path) ([]docstore.Path, error) {
	docs, err := r.store.List(ctx, collection, docstore.Query{})
	if err != nil {
		return nil, err
	}
	paths := make([]docstore.Path, 0, len(docs))
	for _, doc := range docs {
		paths = append(paths, doc.Path)
	}
	return paths, nil
}

// Remove deletes path, reporting whether it existed.
func (r *Repository) Remove(ctx context.Context, path docstore.Path) (bool, error) {
	err := r.store.Delete(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
