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
	serverURL  string
	apiKey     string
	timeoutSec int
	stdinText  string
	testsFile  string
)

func main() {
	root := &cobra.Command{
		Use:   "runner-cli",
		Short: "CLI client for code-runner-api",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("RUNNER_API_KEY"), "API key")

	// Run command
	runCmd := &cobra.Command{
		Use:   "run [code]",
		Short: "Run code on the server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&timeoutSec, "timeout", 5, "Execution timeout in seconds")
	runCmd.Flags().StringVar(&stdinText, "stdin", "", "Text fed to the program's stdin")
	root.AddCommand(runCmd)

	// Run from file
	runFileCmd := &cobra.Command{
		Use:   "run-file [file]",
		Short: "Run code from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunFile,
	}
	runFileCmd.Flags().IntVar(&timeoutSec, "timeout", 5, "Execution timeout in seconds")
	runFileCmd.Flags().StringVar(&stdinText, "stdin", "", "Text fed to the program's stdin")
	root.AddCommand(runFileCmd)

	// Test command
	testCmd := &cobra.Command{
		Use:   "test [solution-file]",
		Short: "Run a test suite against a solution",
		Args:  cobra.ExactArgs(1),
		RunE:  runTest,
	}
	testCmd.Flags().IntVar(&timeoutSec, "timeout", 5, "Execution timeout in seconds")
	testCmd.Flags().StringVar(&testsFile, "tests", "", "File containing the test suite (required)")
	_ = testCmd.MarkFlagRequired("tests")
	root.AddCommand(testCmd)

	// Ping
	root.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check the server is up",
		RunE:  runPing,
	})

	// List runs
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE:  runList,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	var code string

	if len(args) > 0 {
		code = args[0]
	} else {
		// Read from stdin
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		code = string(data)
	}

	return postRun(code)
}

func runRunFile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	return postRun(string(data))
}

func runTest(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading solution file: %w", err)
	}
	tests, err := os.ReadFile(testsFile)
	if err != nil {
		return fmt.Errorf("reading tests file: %w", err)
	}

	payload := map[string]any{
		"code":        string(code),
		"tests":       string(tests),
		"timeout_sec": timeoutSec,
	}
	return postJSON("/test", payload)
}

func postRun(code string) error {
	payload := map[string]any{
		"code":        code,
		"timeout_sec": timeoutSec,
	}
	if stdinText != "" {
		payload["stdin"] = stdinText
	}
	return postJSON("/run", payload)
}

func postJSON(path string, payload map[string]any) error {
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", serverURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	// Pretty print
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	// Exit with the run's exit code
	if exitCode, ok := result["exit_code"].(float64); ok && exitCode != 0 {
		os.Exit(int(exitCode))
	}

	return nil
}

func runPing(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/ping")
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	req, _ := http.NewRequest("GET", serverURL+"/runs", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}
