package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DeletedItemTitle = "Item deleted"

type Booking struct {
	ID          string          `json:"id"`
	UserID      *int64          `json:"userId"`
	ItemID      string          `json:"itemId"`
	ItemType    ItemType        `json:"itemType"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Status      string          `json:"status"`
	BookingDate time.Time       `json:"bookingDate"`
	UserName    string          `json:"userName"`
	UserEmail   string          `json:"userEmail"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (b *Booking) IsGuest() bool {
	return b.UserID == nil
}

// BookingView is a booking enriched with its catalog item as it looks now.
// Item is nil once the referenced record has been deleted.
type BookingView struct {
	Booking
	ItemTitle string       `json:"itemTitle"`
	Item      *CatalogItem `json:"item"`
}

func NewBookingView(b Booking, item *CatalogItem) BookingView {
	v := BookingView{Booking: b, Item: item, ItemTitle: DeletedItemTitle}
	if item != nil {
		v.ItemTitle = item.Title
	}
	return v
}

// BookingFilter narrows a user's booking list. Zero fields match everything.
type BookingFilter struct {
	ItemType ItemType
	Status   string
	// Location is a case-insensitive substring of the resolved item location.
	Location string
}

func (f BookingFilter) Match(v BookingView) bool {
	if f.ItemType != "" && v.ItemType != f.ItemType {
		return false
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.Location != "" {
		if v.Item == nil {
			return false
		}
		if !strings.Contains(strings.ToLower(v.Item.Location), strings.ToLower(f.Location)) {
			return false
		}
	}
	return true
}

func ValidBookingStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}
