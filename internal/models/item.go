package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// ItemType discriminates the three catalog collections a booking may point at.
type ItemType string

const (
	ItemTypeProduct  ItemType = "product"
	ItemTypeWorkshop ItemType = "workshop"
	ItemTypeEvent    ItemType = "event"
)

const (
	CategoryProducts  = "products"
	CategoryWorkshops = "workshops"
	CategoryEvents    = "events"
)

var ItemTypes = []ItemType{ItemTypeProduct, ItemTypeWorkshop, ItemTypeEvent}

func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown item type %q", s)
	}
	return t, nil
}

// ItemTypeFromCategory maps a category tag ("workshops") to its item type.
func ItemTypeFromCategory(category string) (ItemType, bool) {
	switch category {
	case CategoryProducts:
		return ItemTypeProduct, true
	case CategoryWorkshops:
		return ItemTypeWorkshop, true
	case CategoryEvents:
		return ItemTypeEvent, true
	}
	return "", false
}

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeProduct, ItemTypeWorkshop, ItemTypeEvent:
		return true
	}
	return false
}

func (t ItemType) Category() string {
	switch t {
	case ItemTypeProduct:
		return CategoryProducts
	case ItemTypeWorkshop:
		return CategoryWorkshops
	case ItemTypeEvent:
		return CategoryEvents
	}
	return ""
}

// Reservable reports whether a booking must be recorded before payment.
func (t ItemType) Reservable() bool {
	return t == ItemTypeWorkshop || t == ItemTypeEvent
}

// IDPrefix is the conventional id prefix for generated catalog ids.
func (t ItemType) IDPrefix() string {
	switch t {
	case ItemTypeProduct:
		return "prod-"
	case ItemTypeWorkshop:
		return "wk-"
	case ItemTypeEvent:
		return "evt-"
	}
	return ""
}

type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// CatalogItem is one record of the product, workshop or event collections.
// Availability applies to products only; Date, Location and Coordinates to
// workshops and events.
type CatalogItem struct {
	ID           string          `json:"id"`
	Type         ItemType        `json:"itemType"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	Category     string          `json:"category"`
	Availability string          `json:"availability,omitempty"`
	Date         string          `json:"date,omitempty"`
	Location     string          `json:"location,omitempty"`
	Coordinates  *Coordinates    `json:"coordinates,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
