package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"folder-sync/backend/app/dto"
)

// Client talks to the coordinator's HTTP surface. The token is set once
// after login and attached to every request.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func New(base string) *Client {
	return &Client{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) SetToken(t string) { c.token = t }

func (c *Client) post(path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s: %s", path, e.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) Register(username, password string) error {
	return c.post("/auth/register", dto.RegisterRequest{Username: username, Password: password}, nil)
}

func (c *Client) Login(username, password string) (dto.TokenResponse, error) {
	var tr dto.TokenResponse
	err := c.post("/auth/login", dto.LoginRequest{Username: username, Password: password}, &tr)
	if err == nil {
		c.token = tr.AccessToken
	}
	return tr, err
}

func (c *Client) RegisterComputer(name string) (dto.ComputerResponse, error) {
	var cr dto.ComputerResponse
	err := c.post("/computers/register", dto.RegisterComputerRequest{Name: name}, &cr)
	return cr, err
}

func (c *Client) ReportChange(req dto.ChangeRequest) (uint64, error) {
	var cr dto.ChangeResponse
	if err := c.post("/sync/changes", req, &cr); err != nil {
		return 0, err
	}
	return cr.Seq, nil
}

func (c *Client) Heartbeat(computerID string) error {
	return c.post("/sync/heartbeat", dto.HeartbeatRequest{ComputerID: computerID}, nil)
}

func (c *Client) Ack(folderID, computerID string, seq uint64) error {
	return c.post("/sync/ack", dto.AckRequest{FolderID: folderID, ComputerID: computerID, Seq: seq}, nil)
}
