// Package runclubclient is a Go client for the runclub JSON API. It
// authenticates with bearer tokens and includes BookingAction, the
// optimistic booking state machine used by front ends.
package runclubclient

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
)

// Error kinds reported by booking operations.
const (
	KindAlreadyBooked = "already_booked"
	KindRunFull       = "run_full"
	KindLirfConflict  = "lirf_conflict"
	KindAuthRequired  = "auth_required"
	KindGeneral       = "general"
)

// APIError is a non-2xx response. Booking failures carry Kind, Title and
// Message; other failures carry only Message.
type APIError struct {
	Status  int
	Kind    string
	Title   string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (%d %s)", e.Title, e.Message, e.Status, e.Kind)
	}
	return fmt.Sprintf("runclub api: %s (%d)", e.Message, e.Status)
}

// IsKind reports whether err is an *APIError with the given booking kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Client calls the API. The zero value is not usable; use New.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for baseURL (e.g. "https://club.example.org").
// A nil httpClient gets a 15 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token is an issued bearer token.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Run is the wire shape of a scheduled run.
type Run struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	DescriptionHTML    string     `json:"description_html"`
	RunDate            string     `json:"run_date"`
	StartTime          string     `json:"start_time"`
	MeetingPoint       string     `json:"meeting_point"`
	DistanceKm         float64    `json:"distance_km"`
	MaxParticipants    int        `json:"max_participants"`
	LirfsRequired      int        `json:"lirfs_required"`
	Status             string     `json:"status"`
	CreatedBy          string     `json:"created_by"`
	RecurrenceGroupID  string     `json:"recurrence_group_id"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	CancellationReason string     `json:"cancellation_reason"`
}

// LirfSlot is a filled leader slot.
type LirfSlot struct {
	Slot     int    `json:"slot"`
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

// RunCard is one entry of the run list.
type RunCard struct {
	Run            Run        `json:"run"`
	ActiveBookings int        `json:"active_bookings"`
	SpacesLeft     int        `json:"spaces_left"`
	OpenLirfSlots  int        `json:"open_lirf_slots"`
	Lirfs          []LirfSlot `json:"lirfs"`
	BookedByMe     bool       `json:"booked_by_me"`
	LeadingIt      bool       `json:"leading_it"`
}

// RunList is the response of ListRuns.
type RunList struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Runs []RunCard `json:"runs"`
}

// Availability is a run with the caller's standing on it.
type Availability struct {
	Run            Run        `json:"run"`
	ActiveBookings int        `json:"active_bookings"`
	SpacesLeft     int        `json:"spaces_left"`
	IsFull         bool       `json:"is_full"`
	MyBookingID    string     `json:"my_booking_id"`
	MySlot         int        `json:"my_slot"`
	OpenLirfSlots  int        `json:"open_lirf_slots"`
	Lirfs          []LirfSlot `json:"lirfs"`
	CanBook        bool       `json:"can_book"`
	CanLead        bool       `json:"can_lead"`
}

// View is the part of an Availability that a booking changes.
func (a Availability) View() View {
	return View{SpacesLeft: a.SpacesLeft, BookedByMe: a.MyBookingID != "", BookingID: a.MyBookingID}
}

// Booking is a member's place on a run.
type Booking struct {
	ID                 string     `json:"id"`
	RunID              string     `json:"run_id"`
	MemberID           string     `json:"member_id"`
	BookedAt           time.Time  `json:"booked_at"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	CancellationReason string     `json:"cancellation_reason"`
}

// LirfAssignment is the result of taking or leaving a leader slot.
type LirfAssignment struct {
	Run  Run `json:"run"`
	Slot int `json:"slot"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&er)
		apiErr := &APIError{Status: resp.StatusCode, Kind: er.Kind, Title: er.Title, Message: er.Message}
		if apiErr.Message == "" {
			apiErr.Message = er.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IssueToken exchanges credentials for a bearer token and stores it on the client.
func (c *Client) IssueToken(ctx context.Context, email, password string) (Token, error) {
	var tok Token
	err := c.do(ctx, http.MethodPost, "/api/auth/token", map[string]string{"email": email, "password": password}, &tok)
	if err != nil {
		return Token{}, err
	}
	c.SetToken(tok.Token)
	return tok, nil
}

// ListRuns lists runs between from and to (YYYY-MM-DD; empty uses the server default window).
func (c *Client) ListRuns(ctx context.Context, from, to string) (RunList, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	path := "/api/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out RunList
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// GetRun returns the run with the caller's availability.
func (c *Client) GetRun(ctx context.Context, runID string) (Availability, error) {
	var out Availability
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID), nil, &out)
	return out, err
}

// BookRun books the caller onto a run.
func (c *Client) BookRun(ctx context.Context, runID string) (Booking, error) {
	var out Booking
	err := c.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/bookings", struct{}{}, &out)
	return out, err
}

// CancelBooking cancels a booking with an optional reason.
func (c *Client) CancelBooking(ctx context.Context, bookingID, reason string) (Booking, error) {
	var out Booking
	err := c.do(ctx, http.MethodDelete, "/api/bookings/"+url.PathEscape(bookingID), map[string]string{"reason": reason}, &out)
	return out, err
}

// AssignLirf takes the first open leader slot on a run.
func (c *Client) AssignLirf(ctx context.Context, runID string) (LirfAssignment, error) {
	var out LirfAssignment
	err := c.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/lirf", struct{}{}, &out)
	return out, err
}

// UnassignLirf steps the caller down from a run they lead.
func (c *Client) UnassignLirf(ctx context.Context, runID string) (LirfAssignment, error) {
	var out LirfAssignment
	err := c.do(ctx, http.MethodDelete, "/api/runs/"+url.PathEscape(runID)+"/lirf?confirm=true", nil, &out)
	return out, err
}
