package carrier

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

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/httpretry"
)

// LobClient implements Client against a Lob-compatible API. Transient
// failures are retried by the wrapped httpretry client; every retry carries
// the same Idempotency-Key so the carrier prints at most one letter.
type LobClient struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// NewLobClient creates a carrier client. doer is normally an
// *httpretry.RetryClient.
func NewLobClient(baseURL, apiKey string, doer httpretry.HTTPDoer) *LobClient {
	return &LobClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: doer}
}

type lobAddress struct {
	Name    string `json:"name"`
	Line1   string `json:"address_line1"`
	Line2   string `json:"address_line2,omitempty"`
	City    string `json:"address_city"`
	State   string `json:"address_state"`
	Zip     string `json:"address_zip"`
	Country string `json:"address_country,omitempty"`
}

func toLob(a domain.Address) lobAddress {
	country := a.Country
	if country == "" {
		country = "US"
	}
	return lobAddress{Name: a.Name, Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, Zip: a.Zip, Country: country}
}

type lobLetterRequest struct {
	Description string            `json:"description,omitempty"`
	To          lobAddress        `json:"to"`
	From        lobAddress        `json:"from"`
	File        string            `json:"file"`
	Color       bool              `json:"color"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type lobLetter struct {
	ID                   string `json:"id"`
	ExpectedDeliveryDate string `json:"expected_delivery_date"`
	TrackingEvents       []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"tracking_events"`
	Deleted bool `json:"deleted"`
}

type lobError struct {
	Error struct {
		Message    string `json:"message"`
		StatusCode int    `json:"status_code"`
		Code       string `json:"code"`
	} `json:"error"`
}

func (c *LobClient) CreateLetter(ctx context.Context, req LetterRequest) (*Letter, error) {
	if req.IdempotencyKey == "" {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "missing idempotency key"}
	}
	body, err := json.Marshal(lobLetterRequest{
		Description: req.Description,
		To:          toLob(req.To),
		From:        toLob(req.From),
		File:        req.HTML,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "encode letter", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/letters", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	return c.do(httpReq)
}

func (c *LobClient) GetLetter(ctx context.Context, id string) (*Letter, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/letters/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "build request", Err: err}
	}
	return c.do(httpReq)
}

func (c *LobClient) do(req *http.Request) (*Letter, error) {
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures survive the retry client only once its budget is
		// spent; they stay transient for the orchestrator.
		return nil, &domain.MailDispatchError{Reason: "carrier unreachable", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.MailDispatchError{StatusCode: resp.StatusCode, Reason: "read carrier response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var le lobError
		reason := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &le) == nil && le.Error.Message != "" {
			reason = le.Error.Message
		}
		return nil, &domain.MailDispatchError{
			Permanent:  !httpretry.IsRetryableStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Reason:     reason,
		}
	}

	var ll lobLetter
	if err := json.Unmarshal(data, &ll); err != nil {
		return nil, &domain.MailDispatchError{StatusCode: resp.StatusCode, Reason: "decode carrier response", Err: err}
	}
	if ll.ID == "" {
		return nil, &domain.MailDispatchError{StatusCode: resp.StatusCode, Reason: "carrier response has no letter id", Err: errors.New("empty id")}
	}
	return ll.toLetter(), nil
}

func (ll *lobLetter) toLetter() *Letter {
	l := &Letter{ID: ll.ID, Status: domain.MailSubmitted}
	if t, err := time.Parse("2006-01-02", ll.ExpectedDeliveryDate); err == nil {
		l.ExpectedDelivery = t
	}
	for _, ev := range ll.TrackingEvents {
		name := ev.Name
		if name == "" {
			name = ev.Type
		}
		if st, ok := StatusOf(name); ok {
			l.Status = st
			l.LastEvent = name
		}
	}
	if ll.Deleted {
		l.Status = domain.MailFailed
		l.LastEvent = "deleted"
	}
	return l
}

// String is used in logs.
func (l *Letter) String() string {
	return fmt.Sprintf("%s(%s)", l.ID, l.Status)
}
