// Package gateway translates each domain operation into a single request
// against the backend record store. It performs no retries and no caching.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aimed/aimed/internal/domain/entity"
)

// Credentials supplies the bearer credential for authenticated requests.
type Credentials interface {
	Load() (string, bool, error)
}

// AuthResult is the payload returned by login and register.
type AuthResult struct {
	Token string      `json:"token"`
	User  entity.User `json:"user"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     entity.Role `json:"role"`
}

type loginRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     entity.Role `json:"role"`
}

// Client is the Remote Store Gateway.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	creds   Credentials
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the transport-level timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a gateway for the backend at baseURL.
func New(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http or https, got %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// -- Auth --

func (c *Client) Login(ctx context.Context, email, password string, role entity.Role) (AuthResult, error) {
	return call[AuthResult](ctx, c, "login", http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password, Role: role}, false)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	return call[AuthResult](ctx, c, "register", http.MethodPost, "/auth/register", req, false)
}

func (c *Client) Me(ctx context.Context) (entity.User, error) {
	return call[entity.User](ctx, c, "me", http.MethodGet, "/auth/me", nil, true)
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch entity.UserPatch) (entity.User, error) {
	return call[entity.User](ctx, c, "update user", http.MethodPut, "/users/"+url.PathEscape(id), patch, true)
}

func (c *Client) ListUsers(ctx context.Context) ([]entity.User, error) {
	return call[[]entity.User](ctx, c, "list users", http.MethodGet, "/users", nil, true)
}

// -- Appointments --

func (c *Client) ListAppointments(ctx context.Context) ([]entity.Appointment, error) {
	return call[[]entity.Appointment](ctx, c, "list appointments", http.MethodGet, "/appointments", nil, true)
}

func (c *Client) CreateAppointment(ctx context.Context, a entity.Appointment) (entity.Appointment, error) {
	return call[entity.Appointment](ctx, c, "create appointment", http.MethodPost, "/appointments", a, true)
}

func (c *Client) UpdateAppointmentStatus(ctx context.Context, id string, status entity.AppointmentStatus) error {
	body := map[string]entity.AppointmentStatus{"status": status}
	_, err := call[json.RawMessage](ctx, c, "update appointment status", http.MethodPatch,
		"/appointments/"+url.PathEscape(id)+"/status", body, true)
	return err
}

func (c *Client) UpdateAppointmentSummary(ctx context.Context, id, summary string) error {
	body := map[string]string{"summary": summary}
	_, err := call[json.RawMessage](ctx, c, "update appointment summary", http.MethodPatch,
		"/appointments/"+url.PathEscape(id)+"/summary", body, true)
	return err
}

// -- Messages --

// ListMessages lists every message, or only those of appointmentID when it
// is non-empty.
func (c *Client) ListMessages(ctx context.Context, appointmentID string) ([]entity.Message, error) {
	path := "/messages"
	if appointmentID != "" {
		path += "?appointmentId=" + url.QueryEscape(appointmentID)
	}
	return call[[]entity.Message](ctx, c, "list messages", http.MethodGet, path, nil, true)
}

func (c *Client) CreateMessage(ctx context.Context, m entity.Message) (entity.Message, error) {
	return call[entity.Message](ctx, c, "create message", http.MethodPost, "/messages", m, true)
}

// -- Prescriptions --

func (c *Client) ListPrescriptions(ctx context.Context) ([]entity.Prescription, error) {
	return call[[]entity.Prescription](ctx, c, "list prescriptions", http.MethodGet, "/prescriptions", nil, true)
}

func (c *Client) CreatePrescription(ctx context.Context, p entity.Prescription) (entity.Prescription, error) {
	return call[entity.Prescription](ctx, c, "create prescription", http.MethodPost, "/prescriptions", p, true)
}

// -- Medications --

func (c *Client) ListMedications(ctx context.Context) ([]entity.Medication, error) {
	return call[[]entity.Medication](ctx, c, "list medications", http.MethodGet, "/medications", nil, true)
}

func (c *Client) CreateMedication(ctx context.Context, m entity.Medication) (entity.Medication, error) {
	return call[entity.Medication](ctx, c, "create medication", http.MethodPost, "/medications", m, true)
}

func (c *Client) ToggleMedication(ctx context.Context, id string) (entity.Medication, error) {
	return call[entity.Medication](ctx, c, "toggle medication", http.MethodPatch,
		"/medications/"+url.PathEscape(id)+"/toggle", nil, true)
}

// -- Vitals --

func (c *Client) ListVitals(ctx context.Context) ([]entity.VitalSign, error) {
	return call[[]entity.VitalSign](ctx, c, "list vitals", http.MethodGet, "/vitals", nil, true)
}

func (c *Client) CreateVital(ctx context.Context, v entity.VitalSign) (entity.VitalSign, error) {
	return call[entity.VitalSign](ctx, c, "create vital", http.MethodPost, "/vitals", v, true)
}

// -- Alerts --

func (c *Client) ListAlerts(ctx context.Context) ([]entity.Alert, error) {
	return call[[]entity.Alert](ctx, c, "list alerts", http.MethodGet, "/alerts", nil, true)
}

func (c *Client) CreateAlert(ctx context.Context, a entity.Alert) (entity.Alert, error) {
	return call[entity.Alert](ctx, c, "create alert", http.MethodPost, "/alerts", a, true)
}

func (c *Client) ResolveAlert(ctx context.Context, id string) error {
	_, err := call[json.RawMessage](ctx, c, "resolve alert", http.MethodPatch,
		"/alerts/"+url.PathEscape(id)+"/resolve", nil, true)
	return err
}

// -- transport --

type errorBody struct {
	Message string `json:"message"`
}

func call[T any](ctx context.Context, c *Client, op, method, path string, body any, authenticated bool) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return zero, &Error{Kind: ErrInvalid, Op: op, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return zero, &Error{Kind: ErrInvalid, Op: op, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if authenticated {
		token, ok, err := c.creds.Load()
		if err != nil {
			return zero, &Error{Kind: ErrUnauthorized, Op: op, Message: fmt.Sprintf("load credential: %v", err)}
		}
		if !ok {
			return zero, &Error{Kind: ErrUnauthorized, Op: op, Message: "no credential"}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, &Error{Kind: ErrNetwork, Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, &Error{Kind: ErrNetwork, Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, &Error{Kind: classify(resp.StatusCode), Op: op, Status: resp.StatusCode, Message: failureMessage(resp, data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return zero, nil
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &Error{Kind: ErrInvalid, Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return out, nil
}

// classify maps a non-2xx status to a failure class. Server-side and
// throttling failures are transient, so they count as Network.
func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrNetwork
	default:
		return ErrInvalid
	}
}

func failureMessage(resp *http.Response, data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "unknown error"
}
