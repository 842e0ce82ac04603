// Package main implements the diagctl CLI for manual operations against
// the diagnosd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the diagnosd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "diagctl",
	Short: "CLI for diagnosd HTTP server operations",
	Long: `diagctl is a command-line interface for interacting with the diagnosd
HTTP server. It starts troubleshooting sessions, submits step feedback,
and inspects session history.`,
	Version: version,
}

var (
	startSessionID string
	startLanguage  string
	startMachineID string
	startUserID    string
	feedbackStepID string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9180", "diagnosd server URL")

	startCmd.Flags().StringVar(&startSessionID, "session", "", "session id (generated when empty)")
	startCmd.Flags().StringVar(&startLanguage, "language", "", "language code (en, es, fr, de, pt, it)")
	startCmd.Flags().StringVar(&startMachineID, "machine", "", "machine id for context enrichment")
	startCmd.Flags().StringVar(&startUserID, "user", "", "user id for contact preferences")

	feedbackCmd.Flags().StringVar(&feedbackStepID, "step", "", "step id the feedback refers to")
	_ = feedbackCmd.MarkFlagRequired("step")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(healthCmd)
}

// startCmd starts a troubleshooting session
var startCmd = &cobra.Command{
	Use:   "start <problem description>",
	Short: "Start a troubleshooting session",
	Long: `Start a troubleshooting session for a machine problem.

Examples:
  # Start a session
  diagctl start "machine won't start"

  # Start with machine context and language
  diagctl start --machine press-7 --language es "la máquina no arranca"`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

// feedbackCmd submits feedback for a pending step
var feedbackCmd = &cobra.Command{
	Use:   "feedback <session_id> <feedback text>",
	Short: "Submit feedback for the pending step of a session",
	Long: `Submit the user's feedback for a pending troubleshooting step.

Examples:
  # Report that a step helped
  diagctl feedback --step 6f4c... sess-1 "problem fixed"

  # Report that it did not
  diagctl feedback --step 6f4c... sess-1 "still not working"`,
	Args: cobra.ExactArgs(2),
	RunE: runFeedback,
}

// showCmd prints a session with its assessment and steps
var showCmd = &cobra.Command{
	Use:   "show <session_id>",
	Short: "Show a session with its assessment and step history",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check diagnosd server health",
	RunE:  runHealth,
}

// StartRequest matches internal/http/types.go StartRequest
type StartRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Problem   string `json:"problem"`
	Language  string `json:"language,omitempty"`
	MachineID string `json:"machine_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// FeedbackRequest matches internal/http/types.go FeedbackRequest
type FeedbackRequest struct {
	StepID   string `json:"step_id"`
	Feedback string `json:"feedback"`
}

// HealthResponse matches internal/http/types.go HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// runStart handles the start command
func runStart(cmd *cobra.Command, args []string) error {
	req := StartRequest{
		SessionID: startSessionID,
		Problem:   args[0],
		Language:  startLanguage,
		MachineID: startMachineID,
		UserID:    startUserID,
	}
	return postJSON(fmt.Sprintf("%s/api/v1/troubleshoot", serverURL), req)
}

// runFeedback handles the feedback command
func runFeedback(cmd *cobra.Command, args []string) error {
	req := FeedbackRequest{
		StepID:   feedbackStepID,
		Feedback: args[1],
	}
	url := fmt.Sprintf("%s/api/v1/troubleshoot/%s/feedback", serverURL, args[0])
	return postJSON(url, req)
}

// runShow handles the show command
func runShow(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/troubleshoot/%s", serverURL, args[0])

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return printResponse(resp, http.StatusOK)
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// postJSON sends a JSON request and pretty-prints the JSON response.
func postJSON(url string, payload interface{}) error {
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return printResponse(resp, http.StatusOK, http.StatusCreated)
}

// printResponse pretty-prints the response body, erroring on unexpected
// status codes.
func printResponse(resp *http.Response, accepted ...int) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	ok := false
	for _, status := range accepted {
		if resp.StatusCode == status {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
