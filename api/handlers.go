/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Items (catalog surface):
    GET    /api/items                   List all items
    POST   /api/items                   Create item
    GET    /api/items/{id}              Get item state

  Movements:
    POST   /api/items/{id}/movements    Record a stock movement
    GET    /api/items/{id}/movements    Transaction history (paged)

  Transactions:
    GET    /api/transactions/{id}          Get a transaction
    GET    /api/transactions/{id}/related  Get its paired transfer leg

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert DTO to domain request
  3. Call domain logic (ledger, history)
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Item or transaction not found
  - 409: Insufficient stock (with shortfall detail)
  - 503: Storage conflict, safe to retry
  - 500: Internal errors

ATTRIBUTION:
  Authentication is external middleware's job. The handler extracts the
  actor from the X-Action-By header (a stand-in for the authenticated
  principal) and passes it through as the actionBy attribution string.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   inventory.TxStore
	Ledger  *inventory.Ledger
	History *inventory.History
}

// NewHandler creates a new handler around the given store.
func NewHandler(store inventory.TxStore, opts ...inventory.Option) *Handler {
	return &Handler{
		Store:   store,
		Ledger:  inventory.NewLedger(store, opts...),
		History: inventory.NewHistory(store),
	}
}

// =============================================================================
// ITEM HANDLERS (catalog surface)
// =============================================================================

// ListItems returns all items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetItem returns a single item's current state.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := inventory.ItemID(chi.URLParam(r, "id"))

	item, err := h.Store.GetItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// CreateItem creates a new item with zero stock and no cost basis.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Code == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "code and name are required", nil)
		return
	}

	item := inventory.Item{
		ID:             inventory.ItemID(uuid.NewString()),
		Code:           req.Code,
		Name:           req.Name,
		Unit:           req.Unit,
		QuantityOnHand: decimal.Zero,
		MinStock:       parseDecimalOrZero(req.MinStock),
		MaxStock:       parseDecimalOrZero(req.MaxStock),
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		if errors.Is(err, inventory.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "Item code already exists", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// RecordMovement records a stock movement against an item.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	itemID := inventory.ItemID(chi.URLParam(r, "id"))

	var dto MovementRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actionBy := r.Header.Get("X-Action-By")
	if actionBy == "" {
		actionBy = "anonymous"
	}

	req, err := toMovementRequest(itemID, actionBy, dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid movement request", err)
		return
	}

	tx, err := h.Ledger.RecordMovement(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

func toMovementRequest(itemID inventory.ItemID, actionBy string, dto MovementRequestDTO) (inventory.MovementRequest, error) {
	mType, err := inventory.ParseMovementType(dto.Type)
	if err != nil {
		return inventory.MovementRequest{}, err
	}

	qty, err := decimal.NewFromString(dto.Quantity)
	if err != nil {
		return inventory.MovementRequest{}, &inventory.InvalidRequestError{
			Field: "quantity", Message: "not a decimal: " + dto.Quantity,
		}
	}

	req := inventory.MovementRequest{
		ItemID:            itemID,
		Type:              mType,
		Quantity:          qty,
		Reference:         dto.Reference,
		Notes:             dto.Notes,
		ActionBy:          actionBy,
		DestinationItemID: inventory.ItemID(dto.DestinationItemID),
	}

	if dto.UnitCost != nil {
		cost, err := decimal.NewFromString(*dto.UnitCost)
		if err != nil {
			return inventory.MovementRequest{}, &inventory.InvalidRequestError{
				Field: "unitCost", Message: "not a decimal: " + *dto.UnitCost,
			}
		}
		req.UnitCost = &cost
	}

	if dto.TransactionDate != "" {
		date, err := time.Parse(time.RFC3339, dto.TransactionDate)
		if err != nil {
			return inventory.MovementRequest{}, &inventory.InvalidRequestError{
				Field: "transactionDate", Message: "not an RFC 3339 timestamp: " + dto.TransactionDate,
			}
		}
		req.TransactionDate = date
	}

	return req, nil
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// GetHistory returns an item's transaction history, newest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	itemID := inventory.ItemID(chi.URLParam(r, "id"))

	filter := inventory.HistoryFilter{
		Type:   inventory.MovementType(r.URL.Query().Get("type")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	page, err := h.History.ForItem(r.Context(), itemID, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HistoryDTO{
		ItemID:       string(itemID),
		Transactions: toTransactionDTOs(page.Transactions),
		Total:        page.Total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
}

// GetTransaction returns a single transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := inventory.TransactionID(chi.URLParam(r, "id"))

	tx, err := h.History.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// GetRelatedTransaction resolves a transaction's paired transfer leg.
func (h *Handler) GetRelatedTransaction(w http.ResponseWriter, r *http.Request) {
	id := inventory.TransactionID(chi.URLParam(r, "id"))

	related, err := h.History.Related(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if related == nil {
		writeError(w, http.StatusNotFound, "Transaction has no related transaction", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*related))
}

// =============================================================================
// ERROR MAPPING & HELPERS
// =============================================================================

func writeDomainError(w http.ResponseWriter, err error) {
	var shortage *inventory.InsufficientStockError

	switch {
	case errors.As(err, &shortage):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "Insufficient stock",
			Code:  "insufficient_stock",
			Details: map[string]string{
				"item_id":   string(shortage.ItemID),
				"available": shortage.Available.String(),
				"requested": shortage.Requested.String(),
				"shortfall": shortage.Shortfall.String(),
			},
		})
	case errors.Is(err, inventory.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(), Code: "invalid_request",
		})
	case inventory.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: err.Error(), Code: "not_found",
		})
	case inventory.IsRetryable(err):
		// Nothing was committed: the client may safely resubmit.
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "Storage conflict, retry the request", Code: "conflict",
		})
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
