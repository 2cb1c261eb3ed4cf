package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

// Client is the HTTP implementation of Adapter.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type placementRequest struct {
	ClientRef   string    `json:"client_ref"`
	Code        string    `json:"code"`
	SiteID      int64     `json:"site_id"`
	TypeID      int64     `json:"type_id"`
	Description string    `json:"description,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type observationRequest struct {
	ClientRef   string    `json:"client_ref"`
	PlacementID int64     `json:"placement_id"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	Photo       []byte    `json:"photo,omitempty"` // base64 via encoding/json
	PhotoMime   string    `json:"photo_mime,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type acceptedResponse struct {
	ID int64 `json:"id"`
}

func (c *Client) SubmitPlacement(ctx context.Context, p *domain.PendingPlacement) (int64, error) {
	body := placementRequest{
		ClientRef:   p.ClientRef,
		Code:        p.NaturalKey,
		SiteID:      p.SiteID,
		TypeID:      p.TypeID,
		Description: p.Description,
		RecordedAt:  p.CreatedAt,
	}

	var accepted acceptedResponse
	if err := c.post(ctx, "/api/v1/placements", body, &accepted); err != nil {
		return 0, err
	}
	return accepted.ID, nil
}

func (c *Client) SubmitObservation(ctx context.Context, o *domain.PendingObservation) (int64, error) {
	body := observationRequest{
		ClientRef:   o.ClientRef,
		PlacementID: o.TargetID,
		Status:      o.Status,
		Note:        o.Note,
		Photo:       o.Photo,
		PhotoMime:   o.PhotoMime,
		RecordedAt:  o.CreatedAt,
	}

	var accepted acceptedResponse
	if err := c.post(ctx, "/api/v1/observations", body, &accepted); err != nil {
		return 0, err
	}
	return accepted.ID, nil
}

func (c *Client) FetchReferenceEntities(ctx context.Context, kind string) ([]*domain.ReferenceEntity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/reference/"+kind, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var body struct {
		Entities []struct {
			ID   int64  `json:"id"`
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &domain.RemoteError{Class: domain.RemoteServer, Status: resp.StatusCode,
			Message: "undecodable reference payload", Err: err}
	}

	entities := make([]*domain.ReferenceEntity, 0, len(body.Entities))
	for _, e := range body.Entities {
		entities = append(entities, &domain.ReferenceEntity{
			ServerID:   e.ID,
			Kind:       kind,
			NaturalKey: e.Code,
			Name:       e.Name,
		})
	}
	return entities, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return classifyStatus(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// The server may have committed the record even though the response
		// was lost mid-body. The client ref makes the retry safe.
		return &domain.RemoteError{Class: domain.RemoteNetwork, Status: resp.StatusCode,
			Message: "undecodable response body", Err: err}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func networkError(err error) error {
	return &domain.RemoteError{Class: domain.RemoteNetwork, Message: err.Error(), Err: err}
}

// classifyStatus maps a non-success response into the engine's error
// taxonomy: 409 conflict, other 4xx validation, everything else server.
func classifyStatus(resp *http.Response) error {
	msg := readErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return &domain.RemoteError{Class: domain.RemoteConflict, Status: resp.StatusCode, Message: msg}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &domain.RemoteError{Class: domain.RemoteValidation, Status: resp.StatusCode, Message: msg}
	default:
		return &domain.RemoteError{Class: domain.RemoteServer, Status: resp.StatusCode, Message: msg}
	}
}

func readErrorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return "request rejected"
}
