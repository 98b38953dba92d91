//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jjudge-oj/problemgen/config"
	"github.com/jjudge-oj/problemgen/internal/db"
	"github.com/jjudge-oj/problemgen/internal/server"
	"github.com/jjudge-oj/problemgen/types"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d", "postgres", "redis"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	gemini := httptest.NewServer(http.HandlerFunc(stubGemini))
	setEnv(gemini.URL)

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		gemini.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := db.Migrate(config.LoadConfig().Database, db.Up); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		gemini.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		gemini.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/readyz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not ready: %v\n", err)
		shutdown(srv)
		gemini.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	shutdown(srv)
	gemini.Close()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestProblemLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("setter_%d", time.Now().UnixNano())

	token, err := registerUser(t, baseURL, username, "testpass123!")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}

	created, err := createProblem(t, baseURL, token)
	if err != nil {
		t.Fatalf("create problem: %v", err)
	}
	if created.Title != "Pair Sums" {
		t.Fatalf("unexpected problem title: %q", created.Title)
	}
	if created.ValidationStatus != types.StatusRunning {
		t.Fatalf("expected running status, got %q", created.ValidationStatus)
	}
	if len(created.TestCases) != 0 {
		t.Fatalf("expected no test cases on create, got %d", len(created.TestCases))
	}

	status, err := waitForValidation(t, baseURL, token, created.ID)
	if err != nil {
		t.Fatalf("wait for validation: %v", err)
	}
	if status.Status != types.StatusCompleted {
		t.Fatalf("expected completed status, got %q", status.Status)
	}
	if len(status.TestCases) != 2 {
		t.Fatalf("expected 2 test cases, got %d", len(status.TestCases))
	}
	if status.ValidationReport == nil || status.ValidationReport.OverallScore != 92 {
		t.Fatalf("unexpected validation report: %+v", status.ValidationReport)
	}

	var history struct {
		Items []types.Problem `json:"items"`
		Total int             `json:"total"`
	}
	if err := doJSON(t, http.MethodGet, baseURL+"/problems/history?limit=5", token, nil, http.StatusOK, &history); err != nil {
		t.Fatalf("list history: %v", err)
	}
	if history.Total != 1 || len(history.Items) != 1 || history.Items[0].ID != created.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	other, err := registerUser(t, baseURL, username+"_other", "testpass123!")
	if err != nil {
		t.Fatalf("register second user: %v", err)
	}
	if err := doJSON(t, http.MethodGet, baseURL+"/problems/"+created.ID, other, nil, http.StatusNotFound, nil); err != nil {
		t.Fatalf("expected problem hidden from other owner: %v", err)
	}

	var favorited types.Problem
	if err := doJSON(t, http.MethodPut, baseURL+"/problems/"+created.ID+"/favorite", token, nil, http.StatusOK, &favorited); err != nil {
		t.Fatalf("toggle favorite: %v", err)
	}
	if !favorited.IsFavorited {
		t.Fatalf("expected problem to be favorited")
	}

	if err := doJSON(t, http.MethodDelete, baseURL+"/problems/"+created.ID, token, nil, http.StatusOK, nil); err != nil {
		t.Fatalf("delete problem: %v", err)
	}
	if err := doJSON(t, http.MethodGet, baseURL+"/problems/"+created.ID, token, nil, http.StatusNotFound, nil); err != nil {
		t.Fatalf("expected deleted problem to be missing: %v", err)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type statusResponse struct {
	ID               string                  `json:"id"`
	Status           types.ValidationStatus  `json:"status"`
	ValidationReport *types.ValidationReport `json:"validationReport"`
	TestCases        []types.TestCase        `json:"testCases"`
}

func registerUser(t *testing.T, baseURL, username, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"username": username,
		"email":    fmt.Sprintf("%s@example.com", username),
		"name":     "Test Setter",
		"password": password,
	}
	var auth struct {
		Token string `json:"token"`
	}
	if err := doJSON(t, http.MethodPost, baseURL+"/auth/register", "", payload, http.StatusCreated, &auth); err != nil {
		return "", err
	}
	if auth.Token == "" {
		return "", fmt.Errorf("missing token in response")
	}
	return auth.Token, nil
}

func createProblem(t *testing.T, baseURL, token string) (types.Problem, error) {
	t.Helper()

	payload := map[string]any{
		"topics":     []string{"arrays", "math"},
		"rating":     1200,
		"suggestion": "keep the statement short",
	}
	var problem types.Problem
	err := doJSON(t, http.MethodPost, baseURL+"/problems", token, payload, http.StatusCreated, &problem)
	return problem, err
}

func waitForValidation(t *testing.T, baseURL, token, id string) (statusResponse, error) {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for {
		var status statusResponse
		if err := doJSON(t, http.MethodGet, baseURL+"/problems/"+id+"/status", token, nil, http.StatusOK, &status); err != nil {
			return status, err
		}
		if status.Status.IsTerminal() {
			return status, nil
		}
		if time.Now().After(deadline) {
			return status, fmt.Errorf("validation still %q after deadline", status.Status)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func doJSON(t *testing.T, method, url, token string, payload any, wantStatus int, out any) error {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Success != (resp.StatusCode < 400) {
		return fmt.Errorf("envelope success=%v for status %d", env.Success, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// stubGemini answers generateContent calls with a fixed problem or report,
// depending on which prompt was sent.
func stubGemini(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	prompt := string(raw)

	var text string
	switch {
	case strings.Contains(prompt, "Write an original competitive programming problem"):
		problem := map[string]any{
			"title":       "Pair Sums",
			"description": "Given two integers, print their sum.",
			"examples": []map[string]string{
				{"input": "1 2", "output": "3", "explanation": "1 + 2 = 3"},
				{"input": "5 7", "output": "12", "explanation": "5 + 7 = 12"},
			},
			"constraints":     []string{"1 <= a, b <= 10^9"},
			"hints":           []string{"Use 64-bit integers."},
			"tags":            []string{"math"},
			"timeComplexity":  "O(1)",
			"spaceComplexity": "O(1)",
			"approach":        "Add the numbers.",
			"keyInsights":     []string{"The sum may exceed 32 bits."},
		}
		data, _ := json.Marshal(problem)
		text = string(data)
	case strings.Contains(prompt, "Check whether each test case"):
		text = strings.Join([]string{
			"isValid: true",
			"overallScore: 92",
			"summary: Both cases are correct.",
			"strengths:",
			"  - covers small values",
			"weaknesses: []",
			"recommendations: []",
			"testCaseResults:",
			"  - caseNumber: 1",
			"    isValid: true",
			"    explanation: 1 + 2 = 3",
			"  - caseNumber: 2",
			"    isValid: true",
			"    explanation: 5 + 7 = 12",
		}, "\n")
	default:
		http.Error(w, `{"error":{"code":400,"message":"unexpected prompt","status":"INVALID_ARGUMENT"}}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": text}},
			},
			"finishReason": "STOP",
		}},
	})
}

func setEnv(geminiURL string) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("STORE_DRIVER", config.StoreDriverPostgres)
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "problemgen")
	_ = os.Setenv("DB_PASSWORD", "problemgen")
	_ = os.Setenv("DB_NAME", "problemgen")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("REDIS_ADDR", "localhost:6379")
	_ = os.Setenv("PIPELINE_DISPATCH", config.DispatchLocal)
	_ = os.Setenv("STORAGE_BACKEND", config.StorageBackendNone)
	_ = os.Setenv("GEMINI_API_KEY", "test-key")
	_ = os.Setenv("GEMINI_BASE_URL", geminiURL)
	_ = os.Setenv("GEMINI_API_VERSION", "v1beta")
}

func waitForPostgres(ctx context.Context) error {
	conn, err := sql.Open("postgres", db.DSN(config.LoadConfig().Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func startServer(ctx context.Context) (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func shutdown(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
