package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Minimal wire shapes for the seeding client; the server recomputes totals.
type sparePart struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

type serviceItem struct {
	Description string  `json:"description"`
	Cost        float64 `json:"cost"`
}

type entryPayload struct {
	Date             string        `json:"date"`
	KilometerReading int           `json:"kilometerReading"`
	SpareParts       []sparePart   `json:"spareParts"`
	ServiceItems     []serviceItem `json:"serviceItems"`
}

var partNames = []string{"Oil Filter", "Air Filter", "Brake Pads", "Spark Plug", "Wiper Blades", "Battery", "Clutch Plate"}
var serviceNames = []string{"Oil Change", "Wheel Alignment", "Brake Service", "General Inspection", "AC Service", "Coolant Flush"}

var authToken string

func authorizedRequest(method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

// login authenticates against the API and stores the bearer token, falling
// back to registering the seed user on first run.
func login(apiURL string) error {
	creds := map[string]string{
		"username": envOr("SEED_USERNAME", "seed-mechanic"),
		"password": envOr("SEED_PASSWORD", "seed-password-1"),
	}
	data, _ := json.Marshal(creds)

	resp, err := authorizedRequest(http.MethodPost, apiURL+"/auth/login", data)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		reg := map[string]string{
			"username": creds["username"],
			"password": creds["password"],
			"email":    creds["username"] + "@example.com",
			"role":     "mechanic",
		}
		regData, _ := json.Marshal(reg)
		regResp, err := authorizedRequest(http.MethodPost, apiURL+"/auth/register", regData)
		if err != nil {
			return fmt.Errorf("register request failed: %w", err)
		}
		defer regResp.Body.Close()
		resp = regResp
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("authentication failed with status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	authToken = out.Token
	return nil
}

func randomEntry() entryPayload {
	parts := make([]sparePart, rand.Intn(3))
	for i := range parts {
		parts[i] = sparePart{
			Name: partNames[rand.Intn(len(partNames))],
			Cost: float64(100 + rand.Intn(2000)),
		}
	}
	items := make([]serviceItem, 1+rand.Intn(2))
	for i := range items {
		items[i] = serviceItem{
			Description: serviceNames[rand.Intn(len(serviceNames))],
			Cost:        float64(200 + rand.Intn(3000)),
		}
	}
	return entryPayload{
		Date:             time.Now().Format("2006-01-02"),
		KilometerReading: 10000 + rand.Intn(90000),
		SpareParts:       parts,
		ServiceItems:     items,
	}
}

func seedVehicle(apiURL, vehicle string, count int) {
	for i := 0; i < count; i++ {
		data, err := json.Marshal(randomEntry())
		if err != nil {
			log.WithError(err).Error("Failed to marshal entry")
			continue
		}
		resp, err := authorizedRequest(http.MethodPost, apiURL+"/vehicles/"+vehicle+"/entries", data)
		if err != nil {
			log.WithError(err).WithField("vehicle", vehicle).Error("Failed to post entry")
			continue
		}
		resp.Body.Close()
		log.WithFields(log.Fields{"vehicle": vehicle, "status": resp.Status}).Info("Posted service entry")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	apiURL := envOr("API_BASE_URL", "http://localhost:8080/api")

	fleetSize := 5
	if v := os.Getenv("SEED_FLEET_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			fleetSize = n
		}
	}
	perVehicle := 3
	if v := os.Getenv("SEED_ENTRIES_PER_VEHICLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perVehicle = n
		}
	}

	if err := login(apiURL); err != nil {
		log.WithError(err).Fatal("Seeding aborted, could not authenticate")
	}

	log.WithFields(log.Fields{
		"api_url":     apiURL,
		"fleet_size":  fleetSize,
		"per_vehicle": perVehicle,
	}).Info("Seeding service entries")

	for i := 0; i < fleetSize; i++ {
		vehicle := fmt.Sprintf("KA%02dMN%04d", 1+rand.Intn(70), 1000+rand.Intn(9000))
		seedVehicle(apiURL, vehicle, perVehicle)
	}

	log.Info("Seeding completed")
}
