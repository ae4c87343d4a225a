package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vbt-go/internal/vbt"
)

const (
	apiTimeout       = 30 * time.Second
	maxResponseBytes = 1 << 20
)

// Account is one storage account visible to an authorized bearer.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StorageToken is a freshly issued scoped API token. Its value is shown
// exactly once by the API and is never stored as-is.
type StorageToken struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// APIClient talks to the account API that finishes the token exchange.
type APIClient struct {
	base       string
	httpClient *http.Client
}

// NewAPIClient creates a client for the API rooted at base.
func NewAPIClient(base string) *APIClient {
	return &APIClient{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: apiTimeout},
	}
}

// Accounts lists the accounts the bearer token can act on, in API order.
func (c *APIClient) Accounts(ctx context.Context, bearer string) ([]Account, error) {
	var accounts []Account
	if err := c.do(ctx, http.MethodGet, "/accounts", bearer, nil, &accounts); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// tokenRequest asks for a token scoped to object storage reads and writes
// on a single account.
type tokenRequest struct {
	Name     string        `json:"name"`
	Policies []tokenPolicy `json:"policies"`
}

type tokenPolicy struct {
	Effect           string   `json:"effect"`
	Resources        []string `json:"resources"`
	PermissionGroups []string `json:"permission_groups"`
}

// IssueStorageToken creates a read+write object storage token on the
// account and returns its one-time value.
func (c *APIClient) IssueStorageToken(ctx context.Context, bearer, accountID string) (StorageToken, error) {
	req := tokenRequest{
		Name: "vbt vault backups",
		Policies: []tokenPolicy{{
			Effect:           "allow",
			Resources:        []string{"account/" + accountID},
			PermissionGroups: []string{"object-store-read", "object-store-write"},
		}},
	}

	var tok StorageToken
	path := "/accounts/" + url.PathEscape(accountID) + "/tokens"
	if err := c.do(ctx, http.MethodPost, path, bearer, req, &tok); err != nil {
		return StorageToken{}, fmt.Errorf("issuing storage token: %w", err)
	}
	if tok.ID == "" || tok.Value == "" {
		return StorageToken{}, errors.New("account api returned an incomplete token")
	}
	return tok, nil
}

// apiEnvelope is the response wrapper every endpoint uses.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *APIClient) do(ctx context.Context, method, path, bearer string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &vbt.ConnectivityError{Op: "account api", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("account api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var env apiEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.Success {
		if len(env.Errors) > 0 {
			return fmt.Errorf("account api error %d: %s", env.Errors[0].Code, env.Errors[0].Message)
		}
		return errors.New("account api reported failure without detail")
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}
