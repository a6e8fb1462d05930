// Package robot validates that a resolved address really is a Flex robot and
// keeps the local device registration.
package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"time"
)

const (
	// Port is the TCP port the robot's HTTP server listens on.
	Port = 31950
	// VersionHeader must accompany every request to the robot server.
	VersionHeader = "opentrons-version"
	// APIVersion is the header value this client speaks.
	APIVersion = "3"
)

// Health is the robot's /health response.
type Health struct {
	Name          string `json:"name"`
	RobotModel    string `json:"robot_model"`
	APIVersion    string `json:"api_version"`
	FWVersion     string `json:"fw_version"`
	SystemVersion string `json:"system_version"`
	RobotSerial   string `json:"robot_serial"`
}

// Client talks to one robot.
type Client struct {
	addr   netip.AddrPort
	client *http.Client
}

// NewClient creates a client for addr. If client is nil, one with a five
// second timeout is used.
func NewClient(addr netip.AddrPort, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &Client{addr: addr, client: client}
}

// BaseURL is the root of the robot's HTTP API.
func (c *Client) BaseURL() string {
	u := url.URL{Scheme: "http", Host: c.addr.String()}
	return u.String()
}

// Health fetches /health. Any status other than 200 is an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	u := url.URL{Scheme: "http", Host: c.addr.String(), Path: "/health"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set(VersionHeader, APIVersion)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("robot at %s unreachable: %w", c.addr, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("robot at %s: unexpected status code %d", c.addr, res.StatusCode)
	}

	health := &Health{}
	if err := json.NewDecoder(res.Body).Decode(health); err != nil {
		return nil, fmt.Errorf("robot at %s: decoding health: %w", c.addr, err)
	}

	return health, nil
}
