package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// batchResult reports how far a batch got. Committed transactions stay
// committed when a later one fails.
type batchResult struct {
	Committed int    `json:"committed"`
	Total     int    `json:"total"`
	Version   uint64 `json:"version"`
	Error     string `json:"error,omitempty"`
	Field     string `json:"field,omitempty"`
	Index     *int   `json:"index,omitempty"`
}

// handleListTransactions returns the ledger newest first. from/to narrow it
// to a half-open range; kind and category filter the result.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rng, hasRange, err := ParseRangeParams(query, false)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	var kind core.Kind
	if raw := strings.TrimSpace(query.Get("kind")); raw != "" {
		if kind, err = core.ParseKind(raw); err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
	}
	category := strings.TrimSpace(query.Get("category"))

	var (
		txs     []core.Transaction
		version uint64
	)
	if hasRange {
		version = s.deps.Ledger.Version()
		if txs, err = s.deps.Ledger.QueryRange(r.Context(), rng.From, rng.To); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Range query failed",
				log.FieldOperation, log.OpQueryRange, log.FieldError, err)
			ErrorFor(err).Write(w)
			return
		}
	} else {
		snap := s.deps.Ledger.All()
		txs, version = snap.Transactions, snap.Version
	}

	txs = filterTransactions(txs, kind, category)
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewResponse().Version(version).JSON(transactionList{
		Transactions: txs,
		Count:        len(txs),
		Version:      version,
	}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx, ok := s.deps.Ledger.GetByID(id)
	if !ok {
		NotFoundError(fmt.Sprintf("transaction %q not found", id)).Write(w)
		return
	}
	NewResponse().Version(s.deps.Ledger.Version()).JSON(tx).Write(w)
}

// handleCreateTransaction accepts a JSON or form body. A body without an id
// gets a generated one; a body with a known id replaces that record.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	if parser.IsArray() {
		BadRequestError("expected a single transaction; use /api/v1/transactions/batch for arrays").Write(w)
		return
	}

	tx, err := ParseTransaction(parser.Get, "", time.Now().UTC())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	s.upsert(w, r, tx, http.StatusCreated)
}

// handlePutTransaction replaces or creates the record at the path id.
func (s *Server) handlePutTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil || parser.IsArray() {
		BadRequestError("invalid request body").Write(w)
		return
	}

	tx, err := ParseTransaction(parser.Get, id, time.Now().UTC())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}

	status := http.StatusCreated
	if _, exists := s.deps.Ledger.GetByID(id); exists {
		status = http.StatusOK
	}
	s.upsert(w, r, tx, status)
}

func (s *Server) upsert(w http.ResponseWriter, r *http.Request, tx core.Transaction, status int) {
	if err := s.deps.Ledger.Upsert(r.Context(), tx); err != nil {
		if !errors.Is(err, core.ErrValidation) {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Upsert failed",
				log.FieldOperation, log.OpUpsert, log.FieldTransactionID, tx.ID, log.FieldError, err)
		}
		ErrorFor(err).Write(w)
		return
	}

	stored, ok := s.deps.Ledger.GetByID(tx.ID)
	if !ok {
		stored = tx
	}
	NewResponse().
		Status(status).
		Header("Location", "/api/v1/transactions/"+tx.ID).
		Version(s.deps.Ledger.Version()).
		JSON(stored).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Ledger.DeleteByID(r.Context(), id); err != nil {
		if !errors.Is(err, core.ErrValidation) {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Delete failed",
				log.FieldOperation, log.OpDelete, log.FieldTransactionID, id, log.FieldError, err)
		}
		ErrorFor(err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Version(s.deps.Ledger.Version()).Write(w)
}

// handleBatchTransactions validates every element before committing any,
// then commits in order and stops at the first storage failure.
func (s *Server) handleBatchTransactions(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil || !parser.IsArray() {
		BadRequestError("expected a JSON array of transactions").Write(w)
		return
	}

	items := parser.Items()
	if len(items) == 0 {
		BadRequestError(errEmptyBatch.Error()).Write(w)
		return
	}

	now := time.Now().UTC()
	txs := make([]core.Transaction, 0, len(items))
	for i, get := range items {
		tx, err := ParseTransaction(get, "", now)
		if err != nil {
			idx := i
			res := batchResult{Total: len(items), Version: s.deps.Ledger.Version(), Error: err.Error(), Index: &idx}
			var verr *core.ValidationError
			if errors.As(err, &verr) {
				res.Field = verr.Field
			}
			NewResponse().Status(http.StatusUnprocessableEntity).JSON(res).Write(w)
			return
		}
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		txs = append(txs, tx)
	}

	committed, err := s.deps.Ledger.UpsertAll(r.Context(), txs)
	version := s.deps.Ledger.Version()
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Batch stopped",
			log.FieldOperation, log.OpUpsert, "committed", committed, "total", len(txs), log.FieldError, err)
		resp := ErrorFor(err)
		idx := committed
		res := batchResult{Committed: committed, Total: len(txs), Version: version, Index: &idx}
		if body, ok := resp.payload.(ErrorBody); ok {
			res.Error, res.Field = body.Error, body.Field
		}
		resp.Version(version).JSON(res).Write(w)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		Version(version).
		JSON(batchResult{Committed: committed, Total: len(txs), Version: version}).
		Write(w)
}
