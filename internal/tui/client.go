package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fentz26/icad/internal/controlplane"
	"github.com/fentz26/icad/internal/inspection"
	"github.com/fentz26/icad/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the icad API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// NewClient creates a new API client. userID is stamped on submitted results.
func NewClient(baseURL, userID string) *Client {
	return &Client{
		baseURL: baseURL,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// Alarms fetches the newest alarms.
func (c *Client) Alarms(limit int) ([]models.Alarm, error) {
	var alarms []models.Alarm
	err := c.get("/alarms?limit="+strconv.Itoa(limit), &alarms)
	return alarms, err
}

// Cassette fetches one cassette.
func (c *Client) Cassette(id string) (*models.Cassette, error) {
	var cst models.Cassette
	if err := c.get("/cassettes/"+url.PathEscape(id), &cst); err != nil {
		return nil, err
	}
	return &cst, nil
}

// Transactions fetches the transaction history of a cassette.
func (c *Client) Transactions(id string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := c.get(fmt.Sprintf("/cassettes/%s/transactions?limit=%d", url.PathEscape(id), limit), &txs)
	return txs, err
}

// Mode fetches the mode of a domain.
func (c *Client) Mode(domain string) (models.Mode, error) {
	var resp struct {
		Mode models.Mode `json:"mode"`
	}
	if err := c.get("/modes/"+url.PathEscape(domain), &resp); err != nil {
		return "", err
	}
	return resp.Mode, nil
}

// SetMode switches a domain to mode.
func (c *Client) SetMode(domain string, mode models.Mode) (models.Mode, error) {
	body, err := c.send(http.MethodPut, "/modes/"+url.PathEscape(domain), map[string]string{"mode": string(mode)})
	if err != nil {
		return "", err
	}
	var resp struct {
		Mode models.Mode `json:"mode"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.Mode, nil
}

// Submit posts an inspection result and returns the reply.
func (c *Client) Submit(tid, cassetteID, result string) (inspection.Reply, error) {
	ev := inspection.Event{
		TID:         tid,
		MessageName: inspection.MessageICAResult,
		UserID:      c.userID,
		CassetteID:  cassetteID,
		ICAResult:   result,
	}
	var reply inspection.Reply
	body, err := c.send(http.MethodPost, "/events/ica-result", ev)
	if err != nil {
		return reply, err
	}
	err = json.Unmarshal(body, &reply)
	return reply, err
}

// Health fetches the daemon health. The payload is returned alongside the
// error when the daemon reports itself unhealthy.
func (c *Client) Health() (*controlplane.HealthResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health controlplane.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("daemon unhealthy (status %d)", resp.StatusCode)
	}
	return &health, nil
}

func (c *Client) get(path string, v any) error {
	body, err := c.send(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (c *Client) send(method, path string, data any) ([]byte, error) {
	var reader io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}
