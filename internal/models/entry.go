package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Layouts for the two date shapes an entry moves between: the persisted
// ISO-8601 timestamp and the form's date input.
const (
	EntryDateLayout = time.RFC3339
	FormDateLayout  = "2006-01-02"
)

// Cost is a non-negative monetary amount. It decodes leniently: JSON numbers
// and numeric strings are accepted, anything else becomes 0.
type Cost float64

// UnmarshalJSON implements the treat-non-numeric-as-zero rule for cost fields.
func (c *Cost) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Cost(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*c = Cost(n)
			return nil
		}
	}
	*c = 0
	return nil
}

// SparePart is one spare-part line item on a service entry.
type SparePart struct {
	Name string `json:"name" bson:"name"`
	Cost Cost   `json:"cost" bson:"cost"`
}

// ServiceItem is one labour/service line item on a service entry.
type ServiceItem struct {
	Description string `json:"description" bson:"description"`
	Cost        Cost   `json:"cost" bson:"cost"`
}

// ServiceEntry is one maintenance record for a vehicle on a given date.
//
// EntryID is the record's own identity, generated client-side at creation
// time. It is distinct from the store-assigned document key (the Mongo _id),
// which addresses the record inside the vehicle's partition; see db.StoredEntry.
type ServiceEntry struct {
	EntryID          string        `json:"id" bson:"id"`
	VehicleNumber    string        `json:"vehicleNumber" bson:"vehicle_number"`
	Date             string        `json:"date" bson:"date"` // ISO-8601
	KilometerReading int           `json:"kilometerReading" bson:"kilometer_reading"`
	SpareParts       []SparePart   `json:"spareParts" bson:"spare_parts"`
	ServiceItems     []ServiceItem `json:"serviceItems" bson:"service_items"`
	TotalSpareCost   Cost          `json:"totalSpareCost" bson:"total_spare_cost"`
	TotalServiceCost Cost          `json:"totalServiceCost" bson:"total_service_cost"`
	TotalCost        Cost          `json:"totalCost" bson:"total_cost"`
}

// ComputeTotals derives the three total fields from the line items. Totals are
// never authored directly; every mutation site recomputes them through here.
func ComputeTotals(parts []SparePart, items []ServiceItem) (spare, service, total Cost) {
	for _, p := range parts {
		spare += p.Cost
	}
	for _, it := range items {
		service += it.Cost
	}
	return spare, service, spare + service
}

// NormalizeVehicleNumber maps a path-segment vehicle number to its canonical
// uppercase form used as the partition key.
func NormalizeVehicleNumber(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// ParseEntryDate accepts either the persisted ISO-8601 shape or the form's
// date-input shape.
func ParseEntryDate(s string) (time.Time, error) {
	if t, err := time.Parse(EntryDateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(FormDateLayout, s)
}

// SameDay reports whether two instants fall on the same calendar day,
// ignoring time of day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
