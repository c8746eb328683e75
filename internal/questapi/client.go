package questapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/httpx"
	"github.com/ggonzalez94/questd/internal/model"
)

const (
	DefaultBaseURL   = "https://v1.shadenetwork.io"
	DefaultWalletURL = "https://wallet.shadenetwork.io"

	// FallbackActivityID is returned when the activity recorder is unreachable.
	FallbackActivityID int64 = 12345
)

// Client talks to the quest service on behalf of one account session.
type Client struct {
	http      *httpx.Client
	baseURL   string
	walletURL string
}

func New(httpClient *httpx.Client, baseURL, walletURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(walletURL) == "" {
		walletURL = DefaultWalletURL
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		walletURL: strings.TrimRight(walletURL, "/"),
	}
}

// Quests returns the quest list. The service answers either {"quests":[...]}
// or a bare array.
func (c *Client) Quests(ctx context.Context) ([]model.Quest, error) {
	var raw json.RawMessage
	if _, err := c.get(ctx, "/api/quests", nil, &raw); err != nil {
		return nil, err
	}
	return decodeQuests(raw)
}

func decodeQuests(raw json.RawMessage) ([]model.Quest, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []model.Quest
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "decode quest list", err)
		}
		return list, nil
	}
	var wrapped struct {
		Quests []model.Quest `json:"quests"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode quest list", err)
	}
	return wrapped.Quests, nil
}

// User fetches the profile of wallet. A response without a user object is
// reported as Unsupported.
func (c *Client) User(ctx context.Context, wallet string) (model.User, error) {
	vals := url.Values{}
	vals.Set("wallet", wallet)
	var resp struct {
		User *model.User `json:"user"`
	}
	if _, err := c.get(ctx, "/api/auth/user", vals, &resp); err != nil {
		return model.User{}, err
	}
	if resp.User == nil {
		return model.User{}, clierr.New(clierr.CodeUnsupported, "user response missing user object")
	}
	return *resp.User, nil
}

// Complete marks a quest as in progress.
func (c *Client) Complete(ctx context.Context, questID string) error {
	_, err := c.post(ctx, c.baseURL+"/api/quests/complete", map[string]any{"questId": questID}, nil, nil)
	return err
}

// Verify submits the verification payload for questID.
func (c *Client) Verify(ctx context.Context, questID string, payload map[string]any) (model.ActionResult, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["questId"] = questID
	var out model.ActionResult
	_, err := c.post(ctx, c.baseURL+"/api/quests/verify", body, nil, &out)
	return out, err
}

func (c *Client) Claim(ctx context.Context) (model.ActionResult, error) {
	var out model.ActionResult
	_, err := c.post(ctx, c.baseURL+"/api/claim", map[string]any{}, nil, &out)
	return out, err
}

// ActivityRequest is one wallet activity record. Create carries Amount;
// update carries ActivityID, Status and TxHash.
type ActivityRequest struct {
	Action     string `json:"action"`
	Type       string `json:"type"`
	Address    string `json:"address"`
	Amount     string `json:"amount,omitempty"`
	ActivityID int64  `json:"activityId,omitempty"`
	Status     string `json:"status,omitempty"`
	TxHash     string `json:"txHash,omitempty"`
}

const createActivityAmount = "9000000000000000"

func CreateActivity(kind, address string) ActivityRequest {
	return ActivityRequest{Action: "create", Type: kind, Address: address, Amount: createActivityAmount}
}

func UpdateActivity(kind, address string, activityID int64, txHash string) ActivityRequest {
	return ActivityRequest{Action: "update", Type: kind, Address: address, ActivityID: activityID, Status: "success", TxHash: txHash}
}

// RecordActivity posts to the wallet activity recorder and returns its id.
func (c *Client) RecordActivity(ctx context.Context, req ActivityRequest) (int64, error) {
	headers := map[string]string{
		"Origin":  c.walletURL,
		"Referer": c.walletURL + "/",
	}
	var resp struct {
		ActivityID int64 `json:"activityId"`
	}
	if _, err := c.post(ctx, c.walletURL+"/api/activities/record", req, headers, &resp); err != nil {
		return 0, err
	}
	return resp.ActivityID, nil
}

// RecordActivityBestEffort never fails: an unreachable recorder yields the
// fallback id.
func (c *Client) RecordActivityBestEffort(ctx context.Context, req ActivityRequest) int64 {
	id, err := c.RecordActivity(ctx, req)
	if err != nil || id == 0 {
		return FallbackActivityID
	}
	return id
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	return c.http.DoJSON(ctx, req, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body any, headers map[string]string, out any) (http.Header, error) {
	return httpx.DoBodyJSON(ctx, c.http, http.MethodPost, endpoint, body, headers, out)
}
