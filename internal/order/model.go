package order

import (
	"github.com/gofrs/uuid"
	"github.com/paulmach/orb"

	"github.com/vasiliy-maslov/food-circles/internal/geo"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Order is a single submitted food order. Anchor and CreatedAt are unix
// seconds; Anchor names the circle the order joined and never changes
// once the order is stored.
type Order struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	EstablishmentID string         `json:"establishment_id" db:"establishment_id"`
	CityID          string         `json:"city_id" db:"city_id"`
	UserID          string         `json:"user_id" db:"user_id"`
	Lat             float64        `json:"lat" db:"lat"`
	Lon             float64        `json:"lon" db:"lon"`
	Items           map[string]int `json:"items" db:"items"`
	Total           float64        `json:"total" db:"total"`
	Status          Status         `json:"status" db:"status"`
	Anchor          float64        `json:"anchor" db:"anchor"`
	CreatedAt       float64        `json:"created_at" db:"created_at"`
}

func (o *Order) Point() orb.Point {
	return geo.NewPoint(o.Lat, o.Lon)
}

type ScopeKind string

const (
	ScopeEstablishment ScopeKind = "establishment"
	ScopeCity          ScopeKind = "city"
)

// Scope is the grouping dimension circles are computed in.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

// Changes enumerates the order fields that may change after creation.
// A nil field is left untouched.
type Changes struct {
	Status *Status `json:"status,omitempty"`
}

func (c Changes) Empty() bool {
	return c.Status == nil
}
