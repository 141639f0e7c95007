package twchart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calvinmclean/babyapi"
	"github.com/calvinmclean/twchart"

	"github.com/calvinmclean/nora"
)

var ErrNoSession = errors.New("no session has been created")

type Probes []twchart.Probe

// DefaultProbes maps the instrument's RTD channels to chart probes
var DefaultProbes = Probes{
	{Name: nora.SampleTempSensor.String(), Position: twchart.ProbePosition(nora.SampleTempSensor)},
	{Name: nora.FlushwaterTempSensor.String(), Position: twchart.ProbePosition(nora.FlushwaterTempSensor)},
	{Name: nora.InternalAirTempSensor.String(), Position: twchart.ProbePosition(nora.InternalAirTempSensor)},
}

// Client records sampling cycles as TWChart sessions. Each cycle is a session,
// each operating state a stage and each fault an event.
type Client struct {
	client    *babyapi.Client[*session]
	sessionID string
}

type session struct {
	// include NilResource so we don't implement Render/Bind which are not needed
	*babyapi.NilResource
	twchart.Session
}

func (s session) GetID() string {
	return s.Session.GetID()
}

func NewClient(addr string) *Client {
	client := babyapi.NewClient[*session](addr, "/sessions")
	return &Client{client: client}
}

// CreateSession starts the session that later calls add to
func (c *Client) CreateSession(ctx context.Context, name string, probes Probes) (string, error) {
	resp, err := c.client.Post(ctx, &session{
		Session: twchart.Session{
			Name:   name,
			Date:   time.Now(),
			Probes: []twchart.Probe(probes),
		},
	})
	if err != nil {
		return "", fmt.Errorf("error creating session %q: %w", name, err)
	}

	c.sessionID = resp.Data.GetID()
	return c.sessionID, nil
}

// SessionID is the session created by the last CreateSession
func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) SetStartTime(ctx context.Context, startTime time.Time) error {
	if c.sessionID == "" {
		return ErrNoSession
	}
	_, err := c.client.Patch(ctx, c.sessionID, &session{Session: twchart.Session{
		StartTime: startTime,
	}})
	if err != nil {
		return fmt.Errorf("error setting start time: %w", err)
	}
	return nil
}

func (c *Client) AddEvent(ctx context.Context, note string, now time.Time) error {
	return c.post(ctx, "add-event", twchart.Event{Note: note, Time: now})
}

func (c *Client) AddStage(ctx context.Context, name string, now time.Time) error {
	return c.post(ctx, "add-stage", twchart.Stage{Name: name, Start: now})
}

func (c *Client) Done(ctx context.Context, now time.Time) error {
	err := c.post(ctx, "done", map[string]any{"time": now})
	if err == nil {
		c.sessionID = ""
	}
	return err
}

// post sends body to an action endpoint of the current session
func (c *Client) post(ctx context.Context, action string, body any) error {
	if c.sessionID == "" {
		return ErrNoSession
	}

	url, err := c.client.URL(c.sessionID)
	if err != nil {
		return fmt.Errorf("error building url: %w", err)
	}
	url += "/" + action

	var bodyReader io.Reader = http.NoBody
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.client.MakeGenericRequest(req, nil)
	if err != nil {
		return fmt.Errorf("error making %s request: %w", action, err)
	}
	if resp.Response.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status code for %s: %d, response: %v", action, resp.Response.StatusCode, resp.Body)
	}

	return nil
}

// ParseProbes parses a string in the format "1=Name,2=Name,..." into Probes
func ParseProbes(input string) (Probes, error) {
	var probes Probes
	for entry := range strings.SplitSeq(input, ",") {
		pos, name, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid probe entry: %q", entry)
		}
		pos, name = strings.TrimSpace(pos), strings.TrimSpace(name)

		var position twchart.ProbePosition
		_, err := fmt.Sscanf(pos, "%d", &position)
		if err != nil || position <= twchart.ProbePositionNone {
			return nil, fmt.Errorf("invalid probe position: %q", pos)
		}
		if name == "" {
			return nil, fmt.Errorf("missing probe name for position %d", position)
		}
		probes = append(probes, twchart.Probe{Name: name, Position: position})
	}
	return probes, nil
}
