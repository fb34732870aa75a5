/*
cost.go - Weighted-average cost recomputation

PURPOSE:
  The single place where a unit cost is ever recomputed. Cost basis
  changes only when new stock enters at a price: an IN, or the
  destination leg of a TRANSFER. Outflows and adjustments never touch
  cost.

THE RULE:
  if currentStock > 0 and currentCost > 0:
      newCost = (currentStock*currentCost + incomingQty*incomingCost)
              / (currentStock + incomingQty)
  else:
      newCost = incomingCost

  An item with no stock (or no established cost) simply takes the
  incoming cost. Division is exact decimal division; callers decide
  rounding at the presentation layer.

SEE ALSO:
  - ledger.go: Decides when this applies
*/
package inventory

import "github.com/shopspring/decimal"

// WeightedAverageCost returns the unit cost after receiving
// incomingQty units at incomingCost, given the current stock level and
// cost. currentCost may be nil (no cost basis yet).
func WeightedAverageCost(currentStock decimal.Decimal, currentCost *decimal.Decimal, incomingQty, incomingCost decimal.Decimal) decimal.Decimal {
	if currentStock.IsPositive() && currentCost != nil && currentCost.IsPositive() {
		existingValue := currentStock.Mul(*currentCost)
		incomingValue := incomingQty.Mul(incomingCost)
		return existingValue.Add(incomingValue).Div(currentStock.Add(incomingQty))
	}
	return incomingCost
}
