package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"goflare.io/punchclock/internal/models"
)

// Credentials are posted to /login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Data  models.EmployeeProfile `json:"data"`
	Token struct {
		Tokens string `json:"tokens"`
	} `json:"token"`
}

// ActionResult is the response of /checkin and /checkout.
type ActionResult struct {
	Message string          `json:"message"`
	Timelog json.RawMessage `json:"timelog,omitempty"`
}

type employeeRequest struct {
	ID string `json:"id"`
}

type filterRequest struct {
	ID    string `json:"id"`
	Month int    `json:"month"`
	Year  int    `json:"year"`
}

// Login exchanges credentials for the employee profile and a bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (models.EmployeeProfile, string, error) {
	var resp loginResponse
	err := c.do(ctx, request{
		op:     "Login",
		method: http.MethodPost,
		path:   "/login",
		body:   creds,
		out:    &resp,
	})
	if err != nil {
		return models.EmployeeProfile{}, "", err
	}
	if resp.Token.Tokens == "" {
		return models.EmployeeProfile{}, "", newError(KindAuth, http.StatusOK, "Login response carried no token.", nil)
	}
	return resp.Data, resp.Token.Tokens, nil
}

// ViewEmployee loads the profile of employeeID together with its timelog.
func (c *Client) ViewEmployee(ctx context.Context, employeeID string) (models.EmployeeProfile, error) {
	var profile models.EmployeeProfile
	err := c.do(ctx, request{
		op:     "ViewEmployee",
		method: http.MethodGet,
		path:   "/view/" + url.PathEscape(employeeID),
		out:    &profile,
		token:  c.token(ctx),
	})
	return profile, err
}

// Verify issues the lightweight authenticated request used to confirm token
// is still accepted. It uses the short verification timeout.
func (c *Client) Verify(ctx context.Context, token, employeeID string) error {
	return c.do(ctx, request{
		op:      "Verify",
		method:  http.MethodGet,
		path:    "/view/" + url.PathEscape(employeeID),
		token:   token,
		timeout: c.timeouts.Verify,
	})
}

// CheckIn records the start of the work day.
func (c *Client) CheckIn(ctx context.Context, employeeID string) (ActionResult, error) {
	return c.action(ctx, "CheckIn", "/checkin", employeeID)
}

// CheckOut records the end of the work day.
func (c *Client) CheckOut(ctx context.Context, employeeID string) (ActionResult, error) {
	return c.action(ctx, "CheckOut", "/checkout", employeeID)
}

func (c *Client) action(ctx context.Context, op, path, employeeID string) (ActionResult, error) {
	var res ActionResult
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   path,
		body:   employeeRequest{ID: employeeID},
		out:    &res,
		token:  c.token(ctx),
	})
	return res, err
}

// FilterTimelog returns the day records of one month.
func (c *Client) FilterTimelog(ctx context.Context, employeeID string, month, year int) ([]models.DayRecord, error) {
	var resp struct {
		Data []models.DayRecord `json:"data"`
	}
	err := c.do(ctx, request{
		op:     "FilterTimelog",
		method: http.MethodPost,
		path:   "/filterby",
		body:   filterRequest{ID: employeeID, Month: month, Year: year},
		out:    &resp,
		token:  c.token(ctx),
	})
	return resp.Data, err
}

// Payslip returns the payslip of one month as sent by the server.
func (c *Client) Payslip(ctx context.Context, employeeID string, month, year int) (models.Payslip, error) {
	q := url.Values{}
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))

	var payslip json.RawMessage
	err := c.do(ctx, request{
		op:     "Payslip",
		method: http.MethodGet,
		path:   "/getPaySlip/" + url.PathEscape(employeeID) + "?" + q.Encode(),
		out:    &payslip,
		token:  c.token(ctx),
	})
	return payslip, err
}

// Execute replays a queued mutation.
func (c *Client) Execute(ctx context.Context, m models.Mutation) error {
	return c.do(ctx, request{
		op:     "Replay",
		method: string(m.Verb),
		path:   m.Endpoint,
		body:   m.Payload,
		token:  c.token(ctx),
	})
}
