package inventory

import (
	"github.com/upb/inventory-retrieval/internal/filter"
)

// Query is a budget-capped structured inventory search. Empty strings and nil
// pointers mean "no restriction". Text fields match case-insensitive substrings;
// VIN matches exactly.
type Query struct {
	VIN           string   `json:"vin,omitempty"`
	StockNumber   string   `json:"stock_number,omitempty"`
	VehicleType   string   `json:"vehicle_type,omitempty"`
	Year          *int     `json:"year,omitempty"`
	Make          string   `json:"make,omitempty"`
	Model         string   `json:"model,omitempty"`
	Trim          string   `json:"trim,omitempty"`
	Style         string   `json:"style,omitempty"`
	ExteriorColor string   `json:"exterior_color,omitempty"`
	InteriorColor string   `json:"interior_color,omitempty"`
	Certified     *bool    `json:"certified,omitempty"`
	MinPrice      *float64 `json:"min_price,omitempty"`
	MaxPrice      *float64 `json:"max_price,omitempty"`
	FuelType      string   `json:"fuel_type,omitempty"`
	Transmission  string   `json:"transmission,omitempty"`
	DriveType     string   `json:"drive_type,omitempty"`
	Doors         *int     `json:"doors,omitempty"`
	EngineType    string   `json:"engine_type,omitempty"`
	Features      string   `json:"features,omitempty"`
	Packages      string   `json:"packages,omitempty"`
	Description   string   `json:"description,omitempty"`
	Options       string   `json:"options,omitempty"`

	// Extra restricts any other inventory column.
	Extra filter.Spec `json:"-"`

	// Fields projects the returned records; empty returns every column.
	Fields []string `json:"fields,omitempty"`

	// ContextLimit is the token budget; nil selects the configured default.
	ContextLimit *int `json:"context_limit,omitempty"`
}

// Response is the budgeted record set.
type Response struct {
	Data         []map[string]interface{} `json:"data"`
	Count        int                      `json:"count"`
	ContextLimit int                      `json:"context_limit"`
	TotalTokens  int                      `json:"estimated_tokens"`
}
