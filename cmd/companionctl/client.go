package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"example.com/companion/internal/auth"
)

const tokenTTL = 5 * time.Minute

// environment carries the flags shared by every command.
type environment struct {
	address    string
	secret     string
	issuer     string
	outputJSON bool
	timeout    time.Duration
}

func (e *environment) register(fs *pflag.FlagSet) {
	fs.StringVar(&e.address, "addr", envOr("CONTROL_ADDRESS", "127.0.0.1:8787"), "agent control API address")
	fs.StringVar(&e.secret, "secret", os.Getenv("CONTROL_SECRET"), "control token signing secret (mints a token per call)")
	fs.StringVar(&e.issuer, "issuer", envOr("CONTROL_ISSUER", "companion"), "control token issuer")
	fs.BoolVar(&e.outputJSON, "json", false, "print raw JSON responses")
	fs.DurationVar(&e.timeout, "timeout", 6*time.Minute, "request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *environment) baseURL() string {
	if strings.HasPrefix(e.address, "http://") || strings.HasPrefix(e.address, "https://") {
		return strings.TrimSuffix(e.address, "/")
	}
	return "http://" + e.address
}

// call sends one request to the agent and decodes the JSON response into out.
func (e *environment) call(ctx context.Context, method, path, scope string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.secret != "" {
		token, err := auth.Issue(auth.Config{Secret: e.secret, Issuer: e.issuer}, "companionctl", []string{scope}, tokenTTL, time.Now())
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent unreachable at %s: %w", e.address, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var problem struct {
			Type   string `json:"type"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &problem) == nil && problem.Detail != "" {
			return fmt.Errorf("%s (%d): %s", problem.Type, resp.StatusCode, problem.Detail)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if e.outputJSON && len(data) > 0 {
		var buf bytes.Buffer
		if json.Indent(&buf, data, "", "  ") == nil {
			fmt.Println(buf.String())
		} else {
			fmt.Println(string(data))
		}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
