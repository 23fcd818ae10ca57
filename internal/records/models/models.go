// Package models holds the business records whose mutations are audited.
package models

import (
	"strings"
	"time"

	dErrors "warden/pkg/domain-errors"
)

// Reservation is a room booking.
type Reservation struct {
	ID        int64     `json:"id"`
	Guest     string    `json:"guest"`
	Room      string    `json:"room"`
	CheckIn   time.Time `json:"check_in"`
	Nights    int       `json:"nights"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// EntityID exposes the persistent identity; zero means unassigned.
func (r *Reservation) EntityID() (any, error) {
	if r.ID == 0 {
		return nil, nil
	}
	return r.ID, nil
}

func (r *Reservation) Key() int64      { return r.ID }
func (r *Reservation) SetKey(id int64) { r.ID = id }

// Invoice bills a reservation.
type Invoice struct {
	ID            int64     `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	IssuedAt      time.Time `json:"issued_at"`
}

func (i *Invoice) EntityID() (any, error) {
	if i.ID == 0 {
		return nil, nil
	}
	return i.ID, nil
}

func (i *Invoice) Key() int64      { return i.ID }
func (i *Invoice) SetKey(id int64) { i.ID = id }

// Note is a free-form remark. It has a storage key but deliberately no
// EntityID, so its audit records carry no entity id.
type Note struct {
	ID     int64  `json:"id"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

func (n *Note) Key() int64      { return n.ID }
func (n *Note) SetKey(id int64) { n.ID = id }

// ReservationRequest is the create/update payload.
type ReservationRequest struct {
	Guest   string    `json:"guest"`
	Room    string    `json:"room"`
	CheckIn time.Time `json:"check_in"`
	Nights  int       `json:"nights"`
}

func (r *ReservationRequest) Normalize() {
	r.Guest = strings.TrimSpace(r.Guest)
	r.Room = strings.TrimSpace(r.Room)
}

func (r ReservationRequest) Validate() error {
	if r.Guest == "" {
		return dErrors.New(dErrors.CodeValidation, "guest is required")
	}
	if r.Room == "" {
		return dErrors.New(dErrors.CodeValidation, "room is required")
	}
	if r.Nights < 1 || r.Nights > 365 {
		return dErrors.New(dErrors.CodeValidation, "nights must be between 1 and 365")
	}
	return nil
}

// InvoiceRequest is the create payload for an invoice.
type InvoiceRequest struct {
	ReservationID int64  `json:"reservation_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
}

func (r *InvoiceRequest) Normalize() {
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
}

func (r InvoiceRequest) Validate() error {
	if r.ReservationID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "reservation_id is required")
	}
	if r.AmountCents <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount_cents must be positive")
	}
	if len(r.Currency) != 3 {
		return dErrors.New(dErrors.CodeValidation, "currency must be a 3-letter code")
	}
	return nil
}

// NoteRequest is the create payload for a note.
type NoteRequest struct {
	Text string `json:"text"`
}

func (r NoteRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	return nil
}
