package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ukydev/service-logbook/internal/db"
	"github.com/ukydev/service-logbook/internal/models"
)

// MockEntryCollection is a mock implementation of db.EntryCollection
type MockEntryCollection struct {
	mock.Mock
}

func (m *MockEntryCollection) HasEntries(ctx context.Context, vehicleNumber string) (bool, error) {
	args := m.Called(ctx, vehicleNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockEntryCollection) FindEntries(ctx context.Context, vehicleNumber string) ([]db.StoredEntry, error) {
	args := m.Called(ctx, vehicleNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.StoredEntry), args.Error(1)
}

func (m *MockEntryCollection) AppendEntry(ctx context.Context, entry models.ServiceEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *MockEntryCollection) ReplaceEntry(ctx context.Context, vehicleNumber, key string, entry models.ServiceEntry) error {
	args := m.Called(ctx, vehicleNumber, key, entry)
	return args.Error(0)
}

func isoToday() string {
	return time.Now().UTC().Format(models.EntryDateLayout)
}

func isoYesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format(models.EntryDateLayout)
}

func formToday() string {
	return time.Now().UTC().Format(models.FormDateLayout)
}

func TestEntryHandler_Form_FreshVehicle(t *testing.T) {
	entries := new(MockEntryCollection)
	entries.On("HasEntries", mock.Anything, "KA01MN2345").Return(false, nil)

	h := NewEntryHandler(entries, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/vehicles/ka01mn2345/entries/form", nil)
	req.SetPathValue("vehicle", "ka01mn2345")
	w := httptest.NewRecorder()

	h.Form(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp FormResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "KA01MN2345", resp.State.VehicleNumber)
	assert.False(t, resp.Editing)
	assert.Equal(t, "/", resp.Back)
	assert.Equal(t, formToday(), resp.State.Date)
}

func TestEntryHandler_Form_EditYesterdayRedirects(t *testing.T) {
	stored := db.StoredEntry{
		Key: "abc123",
		Entry: models.ServiceEntry{
			EntryID:       "100",
			VehicleNumber: "KA01MN2345",
			Date:          isoYesterday(),
		},
	}
	entries := new(MockEntryCollection)
	entries.On("HasEntries", mock.Anything, "KA01MN2345").Return(true, nil)
	entries.On("FindEntries", mock.Anything, "KA01MN2345").Return([]db.StoredEntry{stored}, nil)

	h := NewEntryHandler(entries, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/vehicles/KA01MN2345/entries/form?edit=100", nil)
	req.SetPathValue("vehicle", "KA01MN2345")
	w := httptest.NewRecorder()

	h.Form(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Notice.Error)
	assert.Equal(t, "/vehicles/KA01MN2345/history", resp.Redirect)
}

func TestEntryHandler_Form_EditToday(t *testing.T) {
	stored := db.StoredEntry{
		Key: "abc123",
		Entry: models.ServiceEntry{
			EntryID:          "100",
			VehicleNumber:    "KA01MN2345",
			Date:             isoToday(),
			KilometerReading: 42000,
			SpareParts:       []models.SparePart{{Name: "Oil Filter", Cost: 250}},
		},
	}
	entries := new(MockEntryCollection)
	entries.On("HasEntries", mock.Anything, "KA01MN2345").Return(true, nil)
	entries.On("FindEntries", mock.Anything, "KA01MN2345").Return([]db.StoredEntry{stored}, nil)

	h := NewEntryHandler(entries, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/vehicles/KA01MN2345/entries/form?edit=100", nil)
	req.SetPathValue("vehicle", "KA01MN2345")
	w := httptest.NewRecorder()

	h.Form(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp FormResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Editing)
	assert.Equal(t, "abc123", resp.StoreKey)
	assert.Equal(t, 42000, resp.State.KilometerReading)
	assert.Equal(t, models.Cost(250), resp.State.TotalCost)
}

func TestEntryHandler_Create(t *testing.T) {
	var saved models.ServiceEntry
	entries := new(MockEntryCollection)
	entries.On("AppendEntry", mock.Anything, mock.AnythingOfType("models.ServiceEntry")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(models.ServiceEntry) }).
		Return("newkey1", nil)

	h := NewEntryHandler(entries, nil)
	body, _ := json.Marshal(map[string]interface{}{
		"date":             formToday(),
		"kilometerReading": 42500,
		"spareParts":       []map[string]interface{}{{"name": "Oil Filter", "cost": 250}},
		"serviceItems":     []map[string]interface{}{{"description": "Oil Change", "cost": "500"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/ka01mn2345/entries", bytes.NewReader(body))
	req.SetPathValue("vehicle", "ka01mn2345")
	w := httptest.NewRecorder()

	h.Create(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "newkey1", resp.Key)
	assert.Equal(t, "/vehicles/KA01MN2345/history", resp.Redirect)
	assert.False(t, resp.Notice.Error)

	assert.NotEmpty(t, saved.EntryID)
	assert.Equal(t, models.Cost(750), saved.TotalCost)
	// The string cost was coerced on decode.
	assert.Equal(t, models.Cost(500), saved.ServiceItems[0].Cost)
}

func TestEntryHandler_Create_ValidationError(t *testing.T) {
	entries := new(MockEntryCollection)
	h := NewEntryHandler(entries, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"date":       formToday(),
		"spareParts": []map[string]interface{}{{"name": "", "cost": 10}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/KA01MN2345/entries", bytes.NewReader(body))
	req.SetPathValue("vehicle", "KA01MN2345")
	w := httptest.NewRecorder()

	h.Create(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Fields)
	assert.Equal(t, "spareParts[0].name", resp.Fields[0].Field)
	entries.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything)
}

func TestEntryHandler_Create_PermissionDenied(t *testing.T) {
	entries := new(MockEntryCollection)
	entries.On("AppendEntry", mock.Anything, mock.Anything).
		Return("", mongo.CommandError{Code: 13, Message: "not authorized"})

	h := NewEntryHandler(entries, nil)
	body, _ := json.Marshal(map[string]interface{}{"date": formToday()})
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/KA01MN2345/entries", bytes.NewReader(body))
	req.SetPathValue("vehicle", "KA01MN2345")
	w := httptest.NewRecorder()

	h.Create(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Permission Denied", resp.Notice.Title)
}

func TestEntryHandler_Update(t *testing.T) {
	stored := db.StoredEntry{
		Key: "abc123",
		Entry: models.ServiceEntry{
			EntryID:       "100",
			VehicleNumber: "KA01MN2345",
			Date:          isoToday(),
		},
	}
	entries := new(MockEntryCollection)
	entries.On("FindEntries", mock.Anything, "KA01MN2345").Return([]db.StoredEntry{stored}, nil)
	entries.On("ReplaceEntry", mock.Anything, "KA01MN2345", "abc123", mock.AnythingOfType("models.ServiceEntry")).
		Return(nil)

	h := NewEntryHandler(entries, nil)
	body, _ := json.Marshal(map[string]interface{}{
		"date":             formToday(),
		"kilometerReading": 43000,
		"serviceItems":     []map[string]interface{}{{"description": "Brake Service", "cost": 1500}},
	})
	req := httptest.NewRequest(http.MethodPut, "/api/vehicles/KA01MN2345/entries/abc123", bytes.NewReader(body))
	req.SetPathValue("vehicle", "KA01MN2345")
	req.SetPathValue("key", "abc123")
	w := httptest.NewRecorder()

	h.Update(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp.Key)
	assert.Equal(t, "100", resp.Entry.EntryID)
	assert.Equal(t, models.Cost(1500), resp.Entry.TotalCost)
}

func TestEntryHandler_Update_UnknownKey(t *testing.T) {
	entries := new(MockEntryCollection)
	entries.On("FindEntries", mock.Anything, "KA01MN2345").Return([]db.StoredEntry{}, nil)

	h := NewEntryHandler(entries, nil)
	body, _ := json.Marshal(map[string]interface{}{"date": formToday()})
	req := httptest.NewRequest(http.MethodPut, "/api/vehicles/KA01MN2345/entries/missing", bytes.NewReader(body))
	req.SetPathValue("vehicle", "KA01MN2345")
	req.SetPathValue("key", "missing")
	w := httptest.NewRecorder()

	h.Update(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntryHandler_History(t *testing.T) {
	entries := new(MockEntryCollection)
	entries.On("FindEntries", mock.Anything, "KA01MN2345").Return([]db.StoredEntry{
		{Key: "k1", Entry: models.ServiceEntry{EntryID: "1", TotalCost: 750}},
		{Key: "k2", Entry: models.ServiceEntry{EntryID: "2", TotalCost: 1200}},
	}, nil)

	h := NewEntryHandler(entries, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/vehicles/ka01mn2345/entries", nil)
	req.SetPathValue("vehicle", "ka01mn2345")
	w := httptest.NewRecorder()

	h.History(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		VehicleNumber string `json:"vehicleNumber"`
		Entries       []struct {
			Key   string              `json:"key"`
			Entry models.ServiceEntry `json:"entry"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "KA01MN2345", resp.VehicleNumber)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "k1", resp.Entries[0].Key)
}
