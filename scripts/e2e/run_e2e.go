// Package main drives a running API through the WhatsApp webhook and checks
// the lead and conversation endpoints afterwards.
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 WEBHOOK_SECRET=... ADMIN_JWT_SECRET=... go run scripts/e2e/run_e2e.go [scenario]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	apiBase       = envOr("API_BASE_URL", "http://localhost:8080")
	webhookSecret = os.Getenv("WEBHOOK_SECRET")
	adminToken    string
	client        = &http.Client{Timeout: 90 * time.Second}
)

type reply struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	LeadStatus  string `json:"lead_status"`
}

type scenario struct {
	name string
	run  func(phone string) error
}

var scenarios = []scenario{
	{"first-contact", func(phone string) error {
		out, err := send(phone, "Hola, quiero información de planes de internet")
		if err != nil {
			return err
		}
		if len(out) != 1 || out[0].LeadStatus != "CONTACTED" {
			return fmt.Errorf("expected one CONTACTED reply, got %+v", out)
		}
		return nil
	}},
	{"multi-turn", func(phone string) error {
		for _, text := range []string{"Hola", "Actualmente tengo WOW", "¿Cuánto cuesta 300 Mbps?"} {
			if _, err := send(phone, text); err != nil {
				return err
			}
		}
		var conv struct {
			Count int `json:"count"`
		}
		if err := getJSON("/leads/"+phone+"/conversation?all=true", &conv); err != nil {
			return err
		}
		if conv.Count != 6 {
			return fmt.Errorf("expected 6 turns, got %d", conv.Count)
		}
		return nil
	}},
	{"redelivery", func(phone string) error {
		id := uuid.NewString()
		if _, err := sendBatch([]map[string]any{{"from_number": phone, "message": "Hola", "message_id": id}}); err != nil {
			return err
		}
		out, err := sendBatch([]map[string]any{{"from_number": phone, "message": "Hola", "message_id": id}})
		if err != nil {
			return err
		}
		if len(out) != 0 {
			return fmt.Errorf("redelivered message was answered again: %+v", out)
		}
		return nil
	}},
	{"bad-message-isolated", func(phone string) error {
		out, err := sendBatch([]map[string]any{
			{"from_number": "", "message": "sin remitente", "message_id": uuid.NewString()},
			{"from_number": phone, "message": "Hola", "message_id": uuid.NewString()},
		})
		if err != nil {
			return err
		}
		if len(out) != 1 || out[0].PhoneNumber != phone {
			return fmt.Errorf("expected a single reply to %s, got %+v", phone, out)
		}
		return nil
	}},
}

func main() {
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "e2e",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(secret))
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign admin token: %v\n", err)
			os.Exit(1)
		}
		adminToken = tok
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	failed := 0
	for i, sc := range scenarios {
		if only != "" && sc.name != only {
			continue
		}
		phone := fmt.Sprintf("+5190%07d", time.Now().UnixNano()%10_000_000+int64(i))
		start := time.Now()
		if err := sc.run(phone); err != nil {
			failed++
			fmt.Printf("FAIL %-22s %v\n", sc.name, err)
			continue
		}
		fmt.Printf("ok   %-22s %s\n", sc.name, time.Since(start).Round(time.Millisecond))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func send(phone, text string) ([]reply, error) {
	return sendBatch([]map[string]any{{
		"from_number": phone,
		"message":     text,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"message_id":  uuid.NewString(),
	}})
}

func sendBatch(msgs []map[string]any) ([]reply, error) {
	body, _ := json.Marshal(map[string]any{"messages": msgs})
	req, err := http.NewRequest(http.MethodPost, apiBase+"/webhook/whatsapp", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if webhookSecret != "" {
		req.Header.Set("X-Webhook-Secret", webhookSecret)
	}
	var out []reply
	return out, do(req, &out)
}

func getJSON(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, apiBase+path, nil)
	if err != nil {
		return err
	}
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	return do(req, v)
}

func do(req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
