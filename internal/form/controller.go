package form

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/service-logbook/internal/db"
	"github.com/ukydev/service-logbook/internal/models"
)

// State is the explicit form state for one service entry. All reads go
// through the controller's accessors and all writes through its mutation
// methods, so the derived totals can never drift from the line items.
type State struct {
	VehicleNumber    string               `json:"vehicleNumber"`
	Date             string               `json:"date"` // form shape, 2006-01-02
	KilometerReading int                  `json:"kilometerReading"`
	SpareParts       []models.SparePart   `json:"spareParts"`
	ServiceItems     []models.ServiceItem `json:"serviceItems"`
	TotalSpareCost   models.Cost          `json:"totalSpareCost"`
	TotalServiceCost models.Cost          `json:"totalServiceCost"`
	TotalCost        models.Cost          `json:"totalCost"`
}

// EventSink receives a notification after an entry is persisted. A nil-safe
// implementation may be passed even when eventing is disabled.
type EventSink interface {
	EntrySaved(entry models.ServiceEntry, key string, created bool)
}

// Controller owns the form state for one service-entry session and drives the
// load, mutate and persist workflow against the entry store.
type Controller struct {
	entries db.EntryCollection
	events  EventSink

	// Now is the clock used for default dates, edit-window checks and
	// generated entry IDs. Tests override it.
	Now func() time.Time

	state      State
	entryID    string // domain identity of the record being edited
	storeKey   string // store-assigned key of the record being edited
	newVehicle bool
	loading    bool
}

// Result describes a successful create or update.
type Result struct {
	Entry    models.ServiceEntry
	Key      string
	Created  bool
	Redirect string
}

// NewController creates a controller over the given entry store. The event
// sink may be nil.
func NewController(entries db.EntryCollection, events EventSink) *Controller {
	c := &Controller{entries: entries, events: events, Now: time.Now}
	c.Reset("")
	return c
}

// HistoryPath is the route of a vehicle's read-only service history view.
func HistoryPath(vehicleNumber string) string {
	return "/vehicles/" + vehicleNumber + "/history"
}

// Reset puts the form into its fresh-entry defaults: today's date, zero
// odometer reading, no line items, zero totals, no edit session.
func (c *Controller) Reset(vehicleNumber string) {
	c.state = State{
		VehicleNumber: models.NormalizeVehicleNumber(vehicleNumber),
		Date:          c.Now().Format(models.FormDateLayout),
		SpareParts:    []models.SparePart{},
		ServiceItems:  []models.ServiceItem{},
	}
	c.entryID = ""
	c.storeKey = ""
	c.recompute()
}

// Load initializes the form for the vehicle. When editID is non-empty the
// vehicle's entries are fetched and scanned for a record whose own id matches;
// a hit inside the edit window populates the form and opens an edit session.
// A record dated on a different day is refused with an EditWindowError. A
// missing record falls through silently to the fresh-entry defaults.
func (c *Controller) Load(ctx context.Context, vehicleNumber, editID string) error {
	c.Reset(vehicleNumber)
	v := c.state.VehicleNumber

	has, err := c.entries.HasEntries(ctx, v)
	if err != nil {
		// Conservatively treat the vehicle as new; this only affects the
		// back-navigation target.
		log.WithError(err).WithField("vehicle", v).Warn("Existence check failed")
		c.newVehicle = true
	} else {
		c.newVehicle = !has
	}

	if editID == "" {
		return nil
	}

	stored, err := c.entries.FindEntries(ctx, v)
	if err != nil {
		return classifyStoreError("load entry", err)
	}
	for _, se := range stored {
		if se.Entry.EntryID == editID {
			return c.beginEdit(se)
		}
	}
	// Edit target not found: stay on the defaults.
	return nil
}

// LoadByKey opens an edit session addressed by the store-assigned key rather
// than the record's own id. Used when the update target is already known.
func (c *Controller) LoadByKey(ctx context.Context, vehicleNumber, key string) error {
	c.Reset(vehicleNumber)
	v := c.state.VehicleNumber

	stored, err := c.entries.FindEntries(ctx, v)
	if err != nil {
		return classifyStoreError("load entry", err)
	}
	for _, se := range stored {
		if se.Key == key {
			return c.beginEdit(se)
		}
	}
	return db.ErrEntryNotFound
}

// beginEdit enforces the same-day edit window and, inside it, copies the
// record into the form and retains both identities for the later update.
func (c *Controller) beginEdit(se db.StoredEntry) error {
	date, err := models.ParseEntryDate(se.Entry.Date)
	if err != nil || !models.SameDay(date, c.Now()) {
		return &EditWindowError{
			VehicleNumber: c.state.VehicleNumber,
			Redirect:      HistoryPath(c.state.VehicleNumber),
		}
	}
	c.state.Date = date.Format(models.FormDateLayout)
	c.state.KilometerReading = se.Entry.KilometerReading
	c.state.SpareParts = append([]models.SparePart{}, se.Entry.SpareParts...)
	c.state.ServiceItems = append([]models.ServiceItem{}, se.Entry.ServiceItems...)
	c.entryID = se.Entry.EntryID
	c.storeKey = se.Key
	c.recompute()
	return nil
}

// Apply copies a submitted payload into the form: date, odometer reading and
// line items. Totals are derived, never taken from the payload.
func (c *Controller) Apply(s State) {
	if s.Date != "" {
		c.state.Date = s.Date
	}
	c.state.KilometerReading = s.KilometerReading
	c.state.SpareParts = append([]models.SparePart{}, s.SpareParts...)
	c.state.ServiceItems = append([]models.ServiceItem{}, s.ServiceItems...)
	c.recompute()
}

// SetDate sets the service date in the form's date shape.
func (c *Controller) SetDate(date string) {
	c.state.Date = date
}

// SetKilometerReading sets the odometer value.
func (c *Controller) SetKilometerReading(km int) {
	c.state.KilometerReading = km
}

// AddSparePart appends an empty spare-part row.
func (c *Controller) AddSparePart() {
	c.state.SpareParts = append(c.state.SpareParts, models.SparePart{})
	c.recompute()
}

// RemoveSparePart removes the spare-part row at i, keeping the rest in
// order. Out-of-range indexes are a no-op.
func (c *Controller) RemoveSparePart(i int) {
	if i < 0 || i >= len(c.state.SpareParts) {
		return
	}
	c.state.SpareParts = append(c.state.SpareParts[:i], c.state.SpareParts[i+1:]...)
	c.recompute()
}

// SetSparePartName sets the name of the spare-part row at i.
func (c *Controller) SetSparePartName(i int, name string) {
	if i < 0 || i >= len(c.state.SpareParts) {
		return
	}
	c.state.SpareParts[i].Name = name
}

// SetSparePartCost sets the cost of the spare-part row at i and recomputes
// the totals immediately, so the displayed total is never a keystroke behind.
func (c *Controller) SetSparePartCost(i int, cost models.Cost) {
	if i < 0 || i >= len(c.state.SpareParts) {
		return
	}
	c.state.SpareParts[i].Cost = cost
	c.recompute()
}

// AddServiceItem appends an empty service-item row.
func (c *Controller) AddServiceItem() {
	c.state.ServiceItems = append(c.state.ServiceItems, models.ServiceItem{})
	c.recompute()
}

// RemoveServiceItem removes the service-item row at i. Out-of-range indexes
// are a no-op.
func (c *Controller) RemoveServiceItem(i int) {
	if i < 0 || i >= len(c.state.ServiceItems) {
		return
	}
	c.state.ServiceItems = append(c.state.ServiceItems[:i], c.state.ServiceItems[i+1:]...)
	c.recompute()
}

// SetServiceItemDescription sets the description of the service-item row at i.
func (c *Controller) SetServiceItemDescription(i int, desc string) {
	if i < 0 || i >= len(c.state.ServiceItems) {
		return
	}
	c.state.ServiceItems[i].Description = desc
}

// SetServiceItemCost sets the cost of the service-item row at i and
// recomputes the totals immediately.
func (c *Controller) SetServiceItemCost(i int, cost models.Cost) {
	if i < 0 || i >= len(c.state.ServiceItems) {
		return
	}
	c.state.ServiceItems[i].Cost = cost
	c.recompute()
}

func (c *Controller) recompute() {
	c.state.TotalSpareCost, c.state.TotalServiceCost, c.state.TotalCost =
		models.ComputeTotals(c.state.SpareParts, c.state.ServiceItems)
}

// State returns a snapshot of the current form state with totals freshly
// recomputed.
func (c *Controller) State() State {
	c.recompute()
	s := c.state
	s.SpareParts = append([]models.SparePart{}, c.state.SpareParts...)
	s.ServiceItems = append([]models.ServiceItem{}, c.state.ServiceItems...)
	return s
}

// Editing reports whether an edit session is open.
func (c *Controller) Editing() bool { return c.storeKey != "" }

// StoreKey returns the store-assigned key of the record being edited, empty
// outside an edit session.
func (c *Controller) StoreKey() string { return c.storeKey }

// BackTarget is where "back" navigates: the application root for a vehicle
// with no prior records, otherwise the vehicle's history view.
func (c *Controller) BackTarget() string {
	if c.newVehicle {
		return "/"
	}
	return HistoryPath(c.state.VehicleNumber)
}

func (c *Controller) validate() models.ValidationErrors {
	var errs models.ValidationErrors
	if strings.TrimSpace(c.state.Date) == "" {
		errs = append(errs, models.FieldError{Field: "date", Message: "date is required"})
	} else if _, err := models.ParseEntryDate(c.state.Date); err != nil {
		errs = append(errs, models.FieldError{Field: "date", Message: "date is not a valid calendar date"})
	}
	if c.state.KilometerReading < 0 {
		errs = append(errs, models.FieldError{Field: "kilometerReading", Message: "kilometer reading must be zero or greater"})
	}
	for i, p := range c.state.SpareParts {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, models.FieldError{
				Field:   "spareParts[" + strconv.Itoa(i) + "].name",
				Message: "spare part name is required",
			})
		}
		if p.Cost < 0 {
			errs = append(errs, models.FieldError{
				Field:   "spareParts[" + strconv.Itoa(i) + "].cost",
				Message: "cost must be zero or greater",
			})
		}
	}
	for i, it := range c.state.ServiceItems {
		if strings.TrimSpace(it.Description) == "" {
			errs = append(errs, models.FieldError{
				Field:   "serviceItems[" + strconv.Itoa(i) + "].description",
				Message: "service description is required",
			})
		}
		if it.Cost < 0 {
			errs = append(errs, models.FieldError{
				Field:   "serviceItems[" + strconv.Itoa(i) + "].cost",
				Message: "cost must be zero or greater",
			})
		}
	}
	return errs
}

// buildEntry formats the persisted record from the form state: text fields
// trimmed, date normalized to ISO-8601, totals recomputed from the trimmed
// line items rather than trusted from memory.
func (c *Controller) buildEntry() models.ServiceEntry {
	parts := make([]models.SparePart, len(c.state.SpareParts))
	for i, p := range c.state.SpareParts {
		parts[i] = models.SparePart{Name: strings.TrimSpace(p.Name), Cost: p.Cost}
	}
	items := make([]models.ServiceItem, len(c.state.ServiceItems))
	for i, it := range c.state.ServiceItems {
		items[i] = models.ServiceItem{Description: strings.TrimSpace(it.Description), Cost: it.Cost}
	}
	date, _ := models.ParseEntryDate(c.state.Date) // validated beforehand

	entry := models.ServiceEntry{
		VehicleNumber:    c.state.VehicleNumber,
		Date:             date.Format(models.EntryDateLayout),
		KilometerReading: c.state.KilometerReading,
		SpareParts:       parts,
		ServiceItems:     items,
	}
	entry.TotalSpareCost, entry.TotalServiceCost, entry.TotalCost = models.ComputeTotals(parts, items)
	return entry
}

// Submit validates the form and persists it: an append for a fresh entry, a
// full overwrite at the known store key inside an edit session. Form state is
// retained on failure so the user can retry.
func (c *Controller) Submit(ctx context.Context) (*Result, error) {
	if c.loading {
		return nil, ErrSubmitInFlight
	}
	c.loading = true
	defer func() { c.loading = false }()

	if errs := c.validate(); len(errs) > 0 {
		return nil, errs
	}

	entry := c.buildEntry()
	v := c.state.VehicleNumber

	var key string
	created := c.storeKey == ""
	if created {
		entry.EntryID = strconv.FormatInt(c.Now().UnixMilli(), 10)
		k, err := c.entries.AppendEntry(ctx, entry)
		if err != nil {
			log.WithError(err).WithField("vehicle", v).Error("Failed to save service entry")
			return nil, classifyStoreError("save entry", err)
		}
		key = k
	} else {
		entry.EntryID = c.entryID
		if err := c.entries.ReplaceEntry(ctx, v, c.storeKey, entry); err != nil {
			if errors.Is(err, db.ErrEntryNotFound) {
				return nil, err
			}
			log.WithError(err).WithFields(log.Fields{"vehicle": v, "key": c.storeKey}).Error("Failed to update service entry")
			return nil, classifyStoreError("update entry", err)
		}
		key = c.storeKey
	}

	if c.events != nil {
		c.events.EntrySaved(entry, key, created)
	}
	return &Result{Entry: entry, Key: key, Created: created, Redirect: HistoryPath(v)}, nil
}
