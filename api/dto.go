/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Quantities and costs travel as JSON strings ("12.5") so clients keep
  decimal precision. Unit cost is null until an item has a cost basis.

VALIDATION:
  Validation is done in handlers and the ledger, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/stock-ledger/inventory"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ItemDTO represents an inventory item in API responses.
type ItemDTO struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Unit           string  `json:"unit,omitempty"`
	QuantityOnHand string  `json:"quantity_on_hand"`
	UnitCost       *string `json:"unit_cost"`
	MinStock       string  `json:"min_stock,omitempty"`
	MaxStock       string  `json:"max_stock,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

// CreateItemRequest is the request to create an item (catalog surface).
type CreateItemRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Unit     string `json:"unit,omitempty"`
	MinStock string `json:"min_stock,omitempty"`
	MaxStock string `json:"max_stock,omitempty"`
}

// MovementRequestDTO is the request to record a movement.
type MovementRequestDTO struct {
	Type              string  `json:"type"`
	Quantity          string  `json:"quantity"`
	UnitCost          *string `json:"unit_cost,omitempty"`
	Reference         string  `json:"reference,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	DestinationItemID string  `json:"destination_item_id,omitempty"`
	TransactionDate   string  `json:"transaction_date,omitempty"` // RFC 3339
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID                   string  `json:"id"`
	ItemID               string  `json:"item_id"`
	Type                 string  `json:"type"`
	Quantity             string  `json:"quantity"`
	UnitCost             *string `json:"unit_cost"`
	Reference            string  `json:"reference,omitempty"`
	Notes                string  `json:"notes,omitempty"`
	ActionBy             string  `json:"action_by"`
	RelatedTransactionID string  `json:"related_transaction_id,omitempty"`
	TransactionDate      string  `json:"transaction_date"`
	CreatedAt            string  `json:"created_at"`
}

// HistoryDTO is one page of an item's transaction history.
type HistoryDTO struct {
	ItemID       string           `json:"item_id"`
	Transactions []TransactionDTO `json:"transactions"`
	Total        int              `json:"total"`
	Limit        int              `json:"limit,omitempty"`
	Offset       int              `json:"offset,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toItemDTO(item inventory.Item) ItemDTO {
	dto := ItemDTO{
		ID:             string(item.ID),
		Code:           item.Code,
		Name:           item.Name,
		Unit:           item.Unit,
		QuantityOnHand: item.QuantityOnHand.String(),
		MinStock:       item.MinStock.String(),
		MaxStock:       item.MaxStock.String(),
		CreatedAt:      item.CreatedAt.Format(time.RFC3339),
	}
	if item.UnitCost != nil {
		s := item.UnitCost.String()
		dto.UnitCost = &s
	}
	return dto
}

func toTransactionDTO(tx inventory.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                   string(tx.ID),
		ItemID:               string(tx.ItemID),
		Type:                 string(tx.Type),
		Quantity:             tx.Quantity.String(),
		Reference:            tx.Reference,
		Notes:                tx.Notes,
		ActionBy:             tx.ActionBy,
		RelatedTransactionID: string(tx.RelatedTransactionID),
		TransactionDate:      tx.TransactionDate.Format(time.RFC3339),
		CreatedAt:            tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.UnitCost != nil {
		s := tx.UnitCost.String()
		dto.UnitCost = &s
	}
	return dto
}

func toTransactionDTOs(txs []inventory.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}
