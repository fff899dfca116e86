package models

import "encoding/json"

// User is the authenticated principal.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Department  string `json:"department,omitempty"`
	Title       string `json:"designation,omitempty"`
	Site        string `json:"location,omitempty"`
}

// DayRecord is one employee's attendance for one calendar date.
type DayRecord struct {
	Date       string `json:"date"`
	CheckIn    string `json:"checkin,omitempty"`
	CheckOut   string `json:"checkout,omitempty"`
	TotalHours string `json:"totalhours,omitempty"`
}

// EmployeeProfile is the payload of GET /view/{id}.
type EmployeeProfile struct {
	ID          string      `json:"_id"`
	EmployeeID  string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	Department  string      `json:"department,omitempty"`
	Designation string      `json:"designation,omitempty"`
	Location    string      `json:"location,omitempty"`
	Timelog     []DayRecord `json:"timelog,omitempty"`
}

// Identifier returns the employee id used by the attendance endpoints.
func (p *EmployeeProfile) Identifier() string {
	if p.EmployeeID != "" {
		return p.EmployeeID
	}
	return p.ID
}

// User converts the profile into the principal cached at login.
func (p *EmployeeProfile) User() User {
	return User{
		ID:          p.Identifier(),
		DisplayName: p.Name,
		Email:       p.Email,
		Role:        p.Role,
		Department:  p.Department,
		Title:       p.Designation,
		Site:        p.Location,
	}
}

// Payslip is passed through untouched; its schema belongs to the server.
type Payslip = json.RawMessage

// Quote is the canonical quote-of-the-day shape.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}
