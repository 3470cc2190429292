package signalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
)

// BlockChecker asks the HTTP API whether a call partner is blocked, so a
// call can be refused before any media is captured. It authenticates with
// the session cookie carried in header; the server answers for the
// session's user, which must be the caller.
type BlockChecker struct {
	api    string
	header http.Header
	client *http.Client
}

// NewBlockChecker talks to the API rooted at api, e.g.
// http://localhost:8080/api. A nil client uses http.DefaultClient.
func NewBlockChecker(api string, header http.Header, client *http.Client) *BlockChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &BlockChecker{api: strings.TrimRight(api, "/"), header: header, client: client}
}

// APIBase derives the HTTP API root from the signaling endpoint:
// ws://host/api/ws/signal becomes http://host/api.
func APIBase(signalURL string) (string, error) {
	u, err := url.Parse(signalURL)
	if err != nil {
		return "", fmt.Errorf("signal url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("signal url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/ws/signal")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (b *BlockChecker) IsBlocked(ctx context.Context, _, other domain.UserID) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.api+"/messages/blocked/"+url.PathEscape(string(other)), nil)
	if err != nil {
		return false, err
	}
	for k, vs := range b.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("block status %s: %w", other, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("block status %s: %s", other, resp.Status)
	}
	var out struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("block status %s: %w", other, err)
	}
	return out.Blocked, nil
}
