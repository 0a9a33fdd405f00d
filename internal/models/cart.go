package models

import "github.com/shopspring/decimal"

// CartLine holds the item snapshot taken when it was added to the cart.
type CartLine struct {
	ItemID   string          `json:"itemId"`
	ItemType ItemType        `json:"itemType"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Category string          `json:"category"`
	Quantity int             `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l CartLine) Reservable() bool {
	return l.Category != CategoryProducts
}

// Cart is the persisted cart document: lines plus the ids that already have a
// booking recorded during the current checkout.
type Cart struct {
	Lines  []CartLine `json:"lines"`
	Booked []string   `json:"booked"`
}
