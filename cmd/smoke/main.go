package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("REDLINE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 5 * time.Minute}

	fmt.Println("Starting smoke test...")

	fmt.Println("1. Checking health...")
	if _, ok := send(client, http.MethodGet, baseURL+"/healthz", nil); !ok {
		fmt.Println("FAILED: Health check")
		os.Exit(1)
	}
	fmt.Println("PASSED: Health check")

	fmt.Println("2. Comparing documents...")
	run := time.Now().Unix()
	payload := map[string]any{
		"old": map[string]any{
			"version": fmt.Sprintf("smoke-%d-v1", run),
			"clauses": []map[string]any{
				{"id": "1", "text": "The tenant shall pay rent within 30 days.", "section_path": []string{"Payment"}},
				{"id": "2", "text": "The company may collect user data for analytics.", "section_path": []string{"Data"}},
			},
		},
		"new": map[string]any{
			"version": fmt.Sprintf("smoke-%d-v2", run),
			"clauses": []map[string]any{
				{"id": "1", "text": "The tenant shall pay rent within 60 days.", "section_path": []string{"Payment"}},
				{"id": "2", "text": "The company must collect user data for analytics.", "section_path": []string{"Data"}},
			},
		},
	}
	body, ok := send(client, http.MethodPost, baseURL+"/comparisons", payload)
	if !ok {
		fmt.Println("FAILED: Compare")
		os.Exit(1)
	}
	var report struct {
		RunID   string `json:"run_id"`
		Results []struct {
			ID          string `json:"id"`
			ReviewState string `json:"review_state"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &report); err != nil || report.RunID == "" {
		fmt.Printf("FAILED: Compare returned an unexpected body: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("PASSED: Compare")

	fmt.Println("3. Reading audit trail...")
	if _, ok := send(client, http.MethodGet, baseURL+"/comparisons/"+report.RunID+"/audit", nil); !ok {
		fmt.Println("FAILED: Audit trail")
		os.Exit(1)
	}
	fmt.Println("PASSED: Audit trail")

	for _, r := range report.Results {
		if r.ReviewState != "human_review_required" {
			continue
		}
		fmt.Println("4. Approving a flagged result...")
		review := map[string]string{"decision": "approve", "reviewer": "smoke"}
		if _, ok := send(client, http.MethodPost, baseURL+"/results/"+r.ID+"/review", review); !ok {
			fmt.Println("FAILED: Review")
			os.Exit(1)
		}
		fmt.Println("PASSED: Review")
		break
	}
}

func send(client *http.Client, method, url string, payload any) ([]byte, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody, true
}
