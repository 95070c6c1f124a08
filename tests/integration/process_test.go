//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kite risk engine.
//
// These tests verify the COMPLETE decision pipeline:
//
//	Batch → Scoring (numeric + narrative) → Threshold → Alert
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. TRANSACTION: A recurring charge against a user's account
//    (subscription, membership, utility) identified by collector and date.
//
// 2. SCORING: Two independent providers estimate the probability that a
//    charge is a "zombie" (forgotten, duplicated, or fraudulent):
//    - Numeric: a pre-trained classifier over structured fields
//    - Narrative: a generative backend reading a history digest
//    The final score is the rounded mean of the two.
//
// 3. TIER: Each user picks an alert sensitivity:
//    - high   → alert at score ≥ 0.90
//    - medium → alert at score ≥ 0.70 (default)
//    - low    → alert at score ≥ 0.50
//
// 4. ALERT: Persisted when the final score crosses the user's threshold
//    AND the user has notifications enabled. Deduplicated by
//    transaction code, so resubmitting a batch never double-alerts.
//
// REQUIREMENTS: a running Kite server (community tier is fine) with the
// scoring backend reachable, or provider fallbacks will pin scores at 0.5.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KITE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Kite's API contract)
// ============================================================================

// CreateUserRequest is the body for POST /users
type CreateUserRequest struct {
	AccountRef    string `json:"accountRef"`
	AccessToken   string `json:"accessToken"`
	Notifications *bool  `json:"notifications,omitempty"`
	Tier          string `json:"tier,omitempty"`
}

// UserResponse is what POST /users returns
type UserResponse struct {
	ID            string `json:"id"`
	AccountRef    string `json:"accountRef"`
	Notifications bool   `json:"notifications"`
	Tier          string `json:"tier"`
}

// TransactionInput is one item in a POST /process batch
type TransactionInput struct {
	Code          string  `json:"code,omitempty"`
	AccountRef    string  `json:"accountRef"`
	Category      string  `json:"category"`
	Collector     string  `json:"collector"`
	Value         float64 `json:"value"`
	Date          string  `json:"date,omitempty"`
	Recurring     bool    `json:"recurring"`
	FirstPurchase bool    `json:"firstPurchase"`
	Refunded      bool    `json:"refunded"`
}

// ProcessRequest is the body for POST /process
type ProcessRequest struct {
	Items []TransactionInput `json:"items"`
}

// ProcessResponse is what POST /process returns
type ProcessResponse struct {
	Processed     int `json:"processed"`
	AlertsCreated int `json:"alertsCreated"`
	Results       []struct {
		Code       string  `json:"code"`
		AccountRef string  `json:"accountRef"`
		Score      float64 `json:"score"`
		Reason     string  `json:"reason"`
		Alerted    bool    `json:"alerted"`
	} `json:"results"`
	Rejected []struct {
		Index  int    `json:"index"`
		Reason string `json:"reason"`
	} `json:"rejected"`
}

// AlertsResponse is what GET /alerts returns
type AlertsResponse struct {
	Count  int `json:"count"`
	Alerts []struct {
		TransactionCode string  `json:"transactionCode"`
		AccountRef      string  `json:"accountRef"`
		Score           float64 `json:"score"`
		Collector       string  `json:"collector"`
	} `json:"alerts"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doJSON(t *testing.T, config TestConfig, method, path string, reqBody, respBody any) int {
	t.Helper()

	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if respBody != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, respBody); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(raw))
		}
	}

	return resp.StatusCode
}

// onboardUser creates (or refreshes) a user and returns the stored row.
func onboardUser(t *testing.T, config TestConfig, accountRef, tier string, notifications bool) UserResponse {
	t.Helper()

	var user UserResponse
	status := doJSON(t, config, "POST", "/users", CreateUserRequest{
		AccountRef:    accountRef,
		AccessToken:   fmt.Sprintf("it-token-%d", time.Now().UnixNano()),
		Notifications: &notifications,
		Tier:          tier,
	}, &user)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201 creating user, got %d", status)
	}
	return user
}

// ============================================================================
// SCENARIO 1: Full Batch Round-Trip
// ============================================================================

func TestProcessBatch_RoundTrip(t *testing.T) {
	/*
	   SCENARIO: Onboard a low-tier user and submit a small batch of
	   recurring charges.

	   EXPECTED BEHAVIOR:
	   - HTTP 202 with one result per submitted item
	   - Every result carries a derived transaction code and a score in [0,1]
	   - Alerts, if any, appear in GET /alerts for the same account
	*/
	config := getTestConfig()

	accountRef := fmt.Sprintf("ES%022d", time.Now().UnixNano()%1e12)
	onboardUser(t, config, accountRef, "low", true)

	var result ProcessResponse
	status := doJSON(t, config, "POST", "/process", ProcessRequest{
		Items: []TransactionInput{
			{AccountRef: accountRef, Category: "subscription", Collector: "netflix", Value: 12.99, Date: "2025-06-01", Recurring: true},
			{AccountRef: accountRef, Category: "membership", Collector: "old-gym", Value: 39.90, Date: "2025-06-02", Recurring: true},
		},
	}, &result)

	if status != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", status)
	}
	if result.Processed != 2 {
		t.Errorf("Expected 2 processed, got %d", result.Processed)
	}
	if len(result.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(result.Results))
	}

	for _, r := range result.Results {
		if r.Code == "" {
			t.Error("Missing derived transaction code")
		}
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("Score out of range: %.3f", r.Score)
		}
	}

	var alerts AlertsResponse
	status = doJSON(t, config, "GET", "/alerts?accountRef="+accountRef, nil, &alerts)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 listing alerts, got %d", status)
	}
	if alerts.Count != result.AlertsCreated {
		t.Errorf("Alert list count %d does not match alertsCreated %d", alerts.Count, result.AlertsCreated)
	}

	t.Logf("✓ Batch round-trip: processed=%d, alertsCreated=%d", result.Processed, result.AlertsCreated)
}

// ============================================================================
// SCENARIO 2: Idempotent Resubmission
// ============================================================================

func TestProcessBatch_Idempotent(t *testing.T) {
	/*
	   SCENARIO: Submit the exact same batch twice.

	   EXPECTED BEHAVIOR:
	   - Both submissions process all items
	   - Alerts are deduplicated by transaction code, so the second
	     submission creates zero NEW alerts
	   - GET /alerts shows each charge at most once

	   WHY THIS MATTERS:
	   Upstream aggregators re-deliver transaction feeds. Without
	   idempotency every re-delivery would spam the user.
	*/
	config := getTestConfig()

	accountRef := fmt.Sprintf("ES%022d", time.Now().UnixNano()%1e12)
	onboardUser(t, config, accountRef, "low", true)

	batch := ProcessRequest{
		Items: []TransactionInput{
			{AccountRef: accountRef, Category: "subscription", Collector: "spotify", Value: 10.99, Date: "2025-05-15", Recurring: true},
		},
	}

	var first ProcessResponse
	if status := doJSON(t, config, "POST", "/process", batch, &first); status != http.StatusAccepted {
		t.Fatalf("Expected 202 on first submission, got %d", status)
	}

	var second ProcessResponse
	if status := doJSON(t, config, "POST", "/process", batch, &second); status != http.StatusAccepted {
		t.Fatalf("Expected 202 on second submission, got %d", status)
	}

	if second.Processed != 1 {
		t.Errorf("Expected second submission to process 1 item, got %d", second.Processed)
	}
	if second.AlertsCreated != 0 {
		t.Errorf("Expected 0 new alerts on resubmission, got %d", second.AlertsCreated)
	}

	var alerts AlertsResponse
	doJSON(t, config, "GET", "/alerts?accountRef="+accountRef, nil, &alerts)
	if alerts.Count > 1 {
		t.Errorf("Expected at most 1 alert after resubmission, got %d", alerts.Count)
	}

	t.Logf("✓ Idempotency held: first created %d, second created %d", first.AlertsCreated, second.AlertsCreated)
}

// ============================================================================
// SCENARIO 3: Notifications Gate
// ============================================================================

func TestNotificationsOff_NoAlerts(t *testing.T) {
	/*
	   SCENARIO: A user with notifications disabled submits charges.

	   EXPECTED BEHAVIOR:
	   - Items are still scored (history keeps accumulating)
	   - No alerts are persisted regardless of score
	*/
	config := getTestConfig()

	accountRef := fmt.Sprintf("ES%022d", time.Now().UnixNano()%1e12)
	onboardUser(t, config, accountRef, "low", false)

	var result ProcessResponse
	status := doJSON(t, config, "POST", "/process", ProcessRequest{
		Items: []TransactionInput{
			{AccountRef: accountRef, Category: "subscription", Collector: "unused-vpn", Value: 9.99, Date: "2025-06-03", Recurring: true},
		},
	}, &result)

	if status != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", status)
	}
	if result.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", result.Processed)
	}
	if result.AlertsCreated != 0 {
		t.Errorf("Expected 0 alerts with notifications off, got %d", result.AlertsCreated)
	}

	t.Logf("✓ Notifications gate held: processed=%d, alerts=%d", result.Processed, result.AlertsCreated)
}

// ============================================================================
// SCENARIO 4: Input Validation
// ============================================================================

func TestEmptyBatch_Error(t *testing.T) {
	/*
	   SCENARIO: POST /process with an empty items array

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()

	status := doJSON(t, config, "POST", "/process", ProcessRequest{Items: []TransactionInput{}}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty batch, got %d", status)
	}

	t.Logf("✓ Validation test passed: empty batch → HTTP %d", status)
}

func TestInvalidItem_Rejected(t *testing.T) {
	/*
	   SCENARIO: A batch mixing one valid item with one missing its
	   account reference.

	   EXPECTED BEHAVIOR:
	   - HTTP 202 (the batch as a whole is fine)
	   - The invalid item lands in "rejected" with its index
	   - The valid item still processes
	*/
	config := getTestConfig()

	accountRef := fmt.Sprintf("ES%022d", time.Now().UnixNano()%1e12)
	onboardUser(t, config, accountRef, "medium", true)

	var result ProcessResponse
	status := doJSON(t, config, "POST", "/process", ProcessRequest{
		Items: []TransactionInput{
			{Category: "subscription", Collector: "no-account", Value: 5},
			{AccountRef: accountRef, Category: "subscription", Collector: "hbo", Value: 8.99, Date: "2025-06-04", Recurring: true},
		},
	}, &result)

	if status != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", status)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Index != 0 {
		t.Errorf("Expected item 0 rejected, got %+v", result.Rejected)
	}
	if result.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", result.Processed)
	}

	t.Logf("✓ Partial rejection: processed=%d, rejected=%d", result.Processed, len(result.Rejected))
}

// ============================================================================
// SCENARIO 5: Alert Policy Lifecycle
// ============================================================================

func TestUserConfigLifecycle(t *testing.T) {
	/*
	   SCENARIO: Read and update a user's alert policy, then deactivate.

	   EXPECTED BEHAVIOR:
	   - GET  /users/{id}/config reflects the tier threshold
	   - PUT  /users/{id}/config switches tier and notifications
	   - DELETE /users/{id} turns notifications off
	*/
	config := getTestConfig()

	accountRef := fmt.Sprintf("ES%022d", time.Now().UnixNano()%1e12)
	user := onboardUser(t, config, accountRef, "high", true)

	var policy struct {
		Notifications bool    `json:"notifications"`
		Tier          string  `json:"tier"`
		Threshold     float64 `json:"threshold"`
	}
	if status := doJSON(t, config, "GET", "/users/"+user.ID+"/config", nil, &policy); status != http.StatusOK {
		t.Fatalf("Expected 200 reading config, got %d", status)
	}
	if policy.Threshold != 0.90 {
		t.Errorf("Expected high-tier threshold 0.90, got %.2f", policy.Threshold)
	}

	off := false
	update := struct {
		Notifications *bool  `json:"notifications"`
		Tier          string `json:"tier"`
	}{Notifications: &off, Tier: "low"}
	if status := doJSON(t, config, "PUT", "/users/"+user.ID+"/config", update, &policy); status != http.StatusOK {
		t.Fatalf("Expected 200 updating config, got %d", status)
	}
	if policy.Notifications || policy.Threshold != 0.50 {
		t.Errorf("Expected notifications off with threshold 0.50, got %+v", policy)
	}

	var deactivated UserResponse
	if status := doJSON(t, config, "DELETE", "/users/"+user.ID, nil, &deactivated); status != http.StatusOK {
		t.Fatalf("Expected 200 deactivating, got %d", status)
	}
	if deactivated.Notifications {
		t.Error("Expected notifications off after deactivation")
	}

	t.Logf("✓ Policy lifecycle: onboard → read → update → deactivate")
}
