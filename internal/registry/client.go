// Package registry provides an HTTP client for the Seguimiento backend, the
// clinic's system of record for patients and appointments. The backend wraps
// most responses in a {statusCode, data} envelope, but not consistently, so
// payloads are unwrapped defensively before decoding.
package registry

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

	"github.com/tidwall/gjson"

	"github.com/saludtb/tb-assistant/pkg/logging"
)

const (
	defaultTimeout = 10 * time.Second

	// Backend status id for a rescheduled ("Programado") appointment.
	StatusProgrammed = 1
)

// Client talks to the Seguimiento backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a Seguimiento client.
func NewClient(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindPatientByPhone looks up a patient by phone number.
// A 404 from the backend means the patient is not registered and yields
// (nil, nil); transport failures and other non-2xx statuses are errors.
func (c *Client) FindPatientByPhone(ctx context.Context, phone string) (*Patient, error) {
	body, found, err := c.get(ctx, "/api/paciente/telefono/"+url.PathEscape(phone))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return patientFromJSON(body), nil
}

// FindPatientByCard looks up a patient by identity card number.
func (c *Client) FindPatientByCard(ctx context.Context, cardID string) (*Patient, error) {
	cardID = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(cardID))
	body, found, err := c.get(ctx, "/api/paciente/carnet/"+url.PathEscape(cardID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return patientFromJSON(body), nil
}

// GetNextAppointment returns the patient's next upcoming appointment, or nil.
func (c *Client) GetNextAppointment(ctx context.Context, patientID string) (*Appointment, error) {
	body, found, err := c.get(ctx, "/api/paciente/"+url.PathEscape(patientID)+"/proxima-cita")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	appt := appointmentFromJSON(body)
	if appt.ID == "" && appt.ScheduledFor == "" {
		return nil, nil
	}
	return &appt, nil
}

// UpdateAppointment performs the reschedule write. It issues exactly one PUT;
// any retry policy belongs to the caller's infrastructure, not here.
func (c *Client) UpdateAppointment(ctx context.Context, req UpdateAppointmentRequest) (*Appointment, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to encode reschedule payload: %w", err)
	}

	body, found, err := c.do(ctx, http.MethodPut, "/api/cita/update-assistant", payload)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("registry: reschedule rejected by backend")
	}
	appt := appointmentFromJSON(body)
	return &appt, nil
}

// Health reports whether the backend answers its health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("registry health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) get(ctx context.Context, path string) (gjson.Result, bool, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// do performs a request and unwraps the backend's response envelope. The
// returned bool is false when the backend answered but had no usable payload
// (404, or an error status embedded in the envelope).
func (c *Client) do(ctx context.Context, method, path string, payload []byte) (gjson.Result, bool, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return gjson.Result{}, false, fmt.Errorf("registry: failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, false, fmt.Errorf("registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return gjson.Result{}, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, false, fmt.Errorf("registry: unexpected status %d from %s", resp.StatusCode, path)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, false, fmt.Errorf("registry: failed to read response: %w", err)
	}

	parsed := gjson.ParseBytes(raw)
	return unwrapEnvelope(parsed)
}

// unwrapEnvelope handles the backend's {statusCode, data} wrapper. Responses
// without the wrapper are returned as-is.
func unwrapEnvelope(parsed gjson.Result) (gjson.Result, bool, error) {
	if !parsed.IsObject() {
		return parsed, parsed.Exists(), nil
	}

	status := parsed.Get("statusCode")
	data := parsed.Get("data")

	if status.Exists() && status.Int() >= 500 {
		return gjson.Result{}, false, fmt.Errorf("registry: backend error %d", status.Int())
	}
	if data.Exists() {
		if data.Type == gjson.Null {
			return gjson.Result{}, false, nil
		}
		return data, true, nil
	}
	return parsed, true, nil
}

func patientFromJSON(r gjson.Result) *Patient {
	p := &Patient{
		ID:        r.Get("id").String(),
		Name:      r.Get("nombre").String(),
		Phone:     r.Get("telefono").String(),
		CardID:    r.Get("carnet_identidad").String(),
		LastVisit: r.Get("ultima_visita").String(),
	}
	if cita := r.Get("proxima_cita"); cita.Exists() && cita.IsObject() {
		appt := appointmentFromJSON(cita)
		p.NextAppointment = &appt
	}
	return p
}

func appointmentFromJSON(r gjson.Result) Appointment {
	appt := Appointment{
		ID:           r.Get("id").String(),
		PatientID:    r.Get("id_paciente").String(),
		ScheduledFor: r.Get("fecha_programada").String(),
	}

	// estado/tipo/motivo arrive either as plain strings or as
	// {descripcion: ...} objects depending on the endpoint.
	for field, dst := range map[string]*string{
		"estado": &appt.Status,
		"tipo":   &appt.Type,
		"motivo": &appt.Reason,
	} {
		v := r.Get(field)
		if v.IsObject() {
			*dst = v.Get("descripcion").String()
		} else {
			*dst = v.String()
		}
	}
	return appt
}
