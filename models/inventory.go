package models

import (
	"time"

	"github.com/upb/inventory-retrieval/internal/filter"
)

// InventoryRecord is one row of the vehicle inventory table. Every column is
// nullable, so every field is a pointer.
type InventoryRecord struct {
	VIN                   *string    `json:"vin"`
	StockNumber           *string    `json:"stock_number"`
	Type                  *string    `json:"type"`
	Year                  *int64     `json:"year"`
	Make                  *string    `json:"make"`
	Model                 *string    `json:"model"`
	Trim                  *string    `json:"trim"`
	Style                 *string    `json:"style"`
	ModelNumber           *string    `json:"model_number"`
	Mileage               *int64     `json:"mileage"`
	ExteriorColor         *string    `json:"exterior_color"`
	ExteriorColorCode     *string    `json:"exterior_color_code"`
	InteriorColor         *string    `json:"interior_color"`
	InteriorColorCode     *string    `json:"interior_color_code"`
	DateInStock           *time.Time `json:"date_in_stock"`
	Certified             *bool      `json:"certified"`
	MSRP                  *float64   `json:"msrp"`
	Invoice               *float64   `json:"invoice"`
	BookValue             *float64   `json:"book_value"`
	SellingPrice          *float64   `json:"selling_price"`
	EngineCylinders       *int64     `json:"engine_cylinders"`
	EngineDisplacement    *string    `json:"engine_displacement"`
	DriveType             *string    `json:"drive_type"`
	FuelType              *string    `json:"fuel_type"`
	Transmission          *string    `json:"transmission"`
	Wheelbase             *float64   `json:"wheelbase"`
	Body                  *string    `json:"body"`
	Doors                 *int64     `json:"doors"`
	Description           *string    `json:"description"`
	Options               *string    `json:"options"`
	KBBRetail             *float64   `json:"kbb_retail"`
	KBBValuationDate      *time.Time `json:"kbb_valuation_date"`
	KBBZipCode            *string    `json:"kbb_zip_code"`
	AddedEquipmentPricing *float64   `json:"added_equipment_pricing"`
	DealerProcessingFee   *float64   `json:"dealer_processing_fee"`
	Location              *string    `json:"location"`
	VehicleStatus         *string    `json:"vehicle_status"`
	EngineType            *string    `json:"engine_type"`
	DriveLine             *string    `json:"drive_line"`
	TransmissionSecondary *string    `json:"transmission_secondary"`
	CityFuelEconomy       *int64     `json:"city_fuel_economy"`
	HighwayFuelEconomy    *int64     `json:"highway_fuel_economy"`
	Features              *string    `json:"features"`
	Packages              *string    `json:"packages"`
}

// TableName returns the default table name for inventory records
func (InventoryRecord) TableName() string {
	return "demo_vehicle_inventory"
}

type inventoryField struct {
	name   string
	typ    filter.ColumnType
	costed bool // counted by the token estimate
	ptr    interface{}
}

// fieldTable is the single source of truth for column order, type and cost.
func (r *InventoryRecord) fieldTable() []inventoryField {
	return []inventoryField{
		{"vin", filter.Text, true, &r.VIN},
		{"stock_number", filter.Text, true, &r.StockNumber},
		{"type", filter.Text, true, &r.Type},
		{"year", filter.Integer, false, &r.Year},
		{"make", filter.Text, true, &r.Make},
		{"model", filter.Text, true, &r.Model},
		{"trim", filter.Text, true, &r.Trim},
		{"style", filter.Text, true, &r.Style},
		{"model_number", filter.Text, false, &r.ModelNumber},
		{"mileage", filter.Integer, false, &r.Mileage},
		{"exterior_color", filter.Text, true, &r.ExteriorColor},
		{"exterior_color_code", filter.Text, false, &r.ExteriorColorCode},
		{"interior_color", filter.Text, true, &r.InteriorColor},
		{"interior_color_code", filter.Text, false, &r.InteriorColorCode},
		{"date_in_stock", filter.Date, false, &r.DateInStock},
		{"certified", filter.Boolean, false, &r.Certified},
		{"msrp", filter.Numeric, false, &r.MSRP},
		{"invoice", filter.Numeric, false, &r.Invoice},
		{"book_value", filter.Numeric, false, &r.BookValue},
		{"selling_price", filter.Numeric, false, &r.SellingPrice},
		{"engine_cylinders", filter.Integer, false, &r.EngineCylinders},
		{"engine_displacement", filter.Text, false, &r.EngineDisplacement},
		{"drive_type", filter.Text, true, &r.DriveType},
		{"fuel_type", filter.Text, true, &r.FuelType},
		{"transmission", filter.Text, true, &r.Transmission},
		{"wheelbase", filter.Numeric, false, &r.Wheelbase},
		{"body", filter.Text, false, &r.Body},
		{"doors", filter.Integer, false, &r.Doors},
		{"description", filter.Text, true, &r.Description},
		{"options", filter.Text, true, &r.Options},
		{"kbb_retail", filter.Numeric, false, &r.KBBRetail},
		{"kbb_valuation_date", filter.Date, false, &r.KBBValuationDate},
		{"kbb_zip_code", filter.Text, false, &r.KBBZipCode},
		{"added_equipment_pricing", filter.Numeric, false, &r.AddedEquipmentPricing},
		{"dealer_processing_fee", filter.Numeric, false, &r.DealerProcessingFee},
		{"location", filter.Text, false, &r.Location},
		{"vehicle_status", filter.Text, false, &r.VehicleStatus},
		{"engine_type", filter.Text, true, &r.EngineType},
		{"drive_line", filter.Text, false, &r.DriveLine},
		{"transmission_secondary", filter.Text, false, &r.TransmissionSecondary},
		{"city_fuel_economy", filter.Integer, false, &r.CityFuelEconomy},
		{"highway_fuel_economy", filter.Integer, false, &r.HighwayFuelEconomy},
		{"features", filter.Text, true, &r.Features},
		{"packages", filter.Text, true, &r.Packages},
	}
}

var (
	// InventoryColumns lists every inventory column in table order
	InventoryColumns []string
	// InventorySchema is the column allow-list used for filters and projections
	InventorySchema filter.Columns
	// InventoryCostColumns are the free-text columns summed by the token estimate
	InventoryCostColumns []string
)

func init() {
	fields := (&InventoryRecord{}).fieldTable()
	InventorySchema = make(filter.Columns, len(fields))
	for _, f := range fields {
		InventoryColumns = append(InventoryColumns, f.name)
		InventorySchema[f.name] = f.typ
		if f.costed {
			InventoryCostColumns = append(InventoryCostColumns, f.name)
		}
	}
}

// ScanTargets returns destinations for every column in InventoryColumns order
func (r *InventoryRecord) ScanTargets() []interface{} {
	fields := r.fieldTable()
	targets := make([]interface{}, len(fields))
	for i, f := range fields {
		targets[i] = f.ptr
	}
	return targets
}

// Values returns column values in InventoryColumns order, nil for NULL
func (r *InventoryRecord) Values() []interface{} {
	fields := r.fieldTable()
	out := make([]interface{}, len(fields))
	for i, f := range fields {
		out[i] = deref(f.ptr, f.typ)
	}
	return out
}

// Project shapes the record for callers. An empty column list selects every column.
// Columns must already be validated against InventorySchema.
func (r *InventoryRecord) Project(columns []string) map[string]interface{} {
	fields := r.fieldTable()
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if len(want) > 0 && !want[f.name] {
			continue
		}
		out[f.name] = deref(f.ptr, f.typ)
	}
	return out
}

// CostText returns the costed text columns, empty for NULL
func (r *InventoryRecord) CostText() []string {
	var out []string
	for _, f := range r.fieldTable() {
		if !f.costed {
			continue
		}
		if p := *(f.ptr.(**string)); p != nil {
			out = append(out, *p)
		} else {
			out = append(out, "")
		}
	}
	return out
}

// UnknownColumns returns the names not present in the inventory allow-list
func UnknownColumns(columns []string) []string {
	var unknown []string
	for _, c := range columns {
		if !InventorySchema.Has(c) {
			unknown = append(unknown, c)
		}
	}
	return unknown
}

func deref(ptr interface{}, typ filter.ColumnType) interface{} {
	switch p := ptr.(type) {
	case **string:
		if *p != nil {
			return **p
		}
	case **int64:
		if *p != nil {
			return **p
		}
	case **float64:
		if *p != nil {
			return **p
		}
	case **bool:
		if *p != nil {
			return **p
		}
	case **time.Time:
		if *p != nil {
			if typ == filter.Date {
				return (*p).Format("2006-01-02")
			}
			return **p
		}
	}
	return nil
}
