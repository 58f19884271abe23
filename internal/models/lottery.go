package models

import (
	"errors"
	"strings"
	"time"
)

// Person is one participant on the roster.
// EmployeeID is the business key used to match people across re-imports;
// ID is what WinnerRecords point at.
type Person struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employeeId"`
	Name       string     `json:"name"`
	IsWinner   bool       `json:"isWinner"`
	WonPrizeID string     `json:"wonPrizeId,omitempty"`
	WonAt      *time.Time `json:"wonAt,omitempty"`
}

// Clone returns a copy that shares no memory with p.
func (p Person) Clone() Person {
	if p.WonAt != nil {
		t := *p.WonAt
		p.WonAt = &t
	}
	return p
}

// ClearWin drops the winner flag and its metadata.
func (p *Person) ClearWin() {
	p.IsWinner = false
	p.WonPrizeID = ""
	p.WonAt = nil
}

// Prize is a prize category with a fixed number of winners.
// DisplayOrder only sequences prizes for the operator; the draw engine ignores it.
type Prize struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Quota        int       `json:"quota"`
	Enabled      bool      `json:"enabled"`
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate checks the fields an administrator controls.
func (p Prize) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("prize name is required")
	}
	if p.Quota <= 0 {
		return errors.New("prize quota must be greater than zero")
	}
	return nil
}

// WinnerRecord is one committed win. Person and prize details are copied in
// so the history still reads correctly after either side is edited or deleted.
type WinnerRecord struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"personId"`
	PrizeID    string    `json:"prizeId"`
	PersonName string    `json:"personName"`
	EmployeeID string    `json:"employeeId"`
	PrizeName  string    `json:"prizeName"`
	WonAt      time.Time `json:"wonAt"`
}
