// Command session_smoke drives the register, login and rotation flow against a
// running API and reports any status code that differs from the contract.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type step struct {
	Name     string
	Method   string
	Path     string
	Body     interface{}
	Bearer   string
	Expected int
}

type result struct {
	Step     step
	Status   int
	Duration time.Duration
	Error    error
}

// envelope decodes both shapes the API answers with: credential endpoints
// return the token pair at the top level, failures carry an error object.
type envelope struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Error        *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		base      string
		username  string
		password  string
		rotations int
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:3000/api/v1", "API base URL including prefix")
	flag.StringVar(&username, "username", "", "Username to register (random when empty)")
	flag.StringVar(&password, "password", "Secr3t!", "Password to register with")
	flag.IntVar(&rotations, "rotations", 5, "Rotation ceiling configured on the server")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if username == "" {
		username = "smoke_" + uuid.NewString()[:8]
	}

	client := &http.Client{Timeout: timeout}
	results, err := runScenario(client, base, username, password, rotations)
	printReport(results)
	if err != nil {
		log.Fatalf("scenario aborted: %v", err)
	}

	failed := 0
	for _, res := range results {
		if res.Error != nil || res.Status != res.Step.Expected {
			failed++
		}
	}
	fmt.Printf("Steps: %d, Failed: %d\n", len(results), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runScenario(client *http.Client, base, username, password string, rotations int) ([]result, error) {
	var results []result
	run := func(s step) (envelope, error) {
		res, env := perform(client, base, s)
		results = append(results, res)
		return env, res.Error
	}

	creds := map[string]string{"username": username, "password": password}
	if _, err := run(step{Name: "register", Method: http.MethodPost, Path: "/auth/register", Body: creds, Expected: http.StatusCreated}); err != nil {
		return results, err
	}
	login, err := run(step{Name: "login", Method: http.MethodPost, Path: "/auth/login", Body: creds, Expected: http.StatusOK})
	if err != nil {
		return results, err
	}
	if login.RefreshToken == "" {
		return results, errors.New("login returned no refresh token")
	}

	if _, err := run(step{Name: "me", Method: http.MethodGet, Path: "/auth/me", Bearer: login.AccessToken, Expected: http.StatusOK}); err != nil {
		return results, err
	}

	original := login.RefreshToken
	token := original
	for i := 1; i <= rotations; i++ {
		env, err := run(step{Name: fmt.Sprintf("rotate #%d", i), Method: http.MethodPost, Path: "/auth/token", Body: map[string]string{"token": token}, Expected: http.StatusOK})
		if err != nil {
			return results, err
		}
		if env.RefreshToken == "" {
			return results, fmt.Errorf("rotation %d returned no refresh token", i)
		}
		token = env.RefreshToken
	}

	if _, err := run(step{Name: "rotate exhausted", Method: http.MethodPost, Path: "/auth/token", Body: map[string]string{"token": token}, Expected: http.StatusForbidden}); err != nil {
		return results, err
	}
	if _, err := run(step{Name: "rotate reused", Method: http.MethodPost, Path: "/auth/token", Body: map[string]string{"token": original}, Expected: http.StatusUnauthorized}); err != nil {
		return results, err
	}
	_, err = run(step{Name: "logout", Method: http.MethodPost, Path: "/auth/logout", Body: map[string]string{"token": token}, Bearer: login.AccessToken, Expected: http.StatusNoContent})
	return results, err
}

func perform(client *http.Client, base string, s step) (result, envelope) {
	res := result{Step: s}
	var env envelope

	var body io.Reader
	if s.Body != nil {
		raw, err := json.Marshal(s.Body)
		if err != nil {
			res.Error = err
			return res, env
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(s.Method, strings.TrimRight(base, "/")+s.Path, body)
	if err != nil {
		res.Error = err
		return res, env
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+s.Bearer)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		res.Error = err
		return res, env
	}
	defer resp.Body.Close()
	res.Duration = time.Since(start)
	res.Status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res, env
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return res, env
}

func printReport(results []result) {
	fmt.Println("Session Smoke Report")
	fmt.Println("====================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.Status != res.Step.Expected {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s %s\n", status, res.Step.Name, res.Step.Method, res.Step.Path)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Status: %d (expected %d) in %s\n", res.Status, res.Step.Expected, res.Duration)
	}
}
