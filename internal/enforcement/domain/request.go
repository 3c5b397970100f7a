// Package domain defines the lease payloads the lease-management system
// sends to the enforcement entry points, plus the enforcement error
// taxonomy.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// LeaseDateLayout is the naive local-time format lease timestamps arrive in.
const LeaseDateLayout = "2006-01-02 15:04:05"

// RequestContext identifies the caller on the wire: opaque tenant/user ids
// plus the region the lease lives in.
type RequestContext struct {
	UserID     string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	RegionName string `json:"region_name"`
}

// ReservationAllocation is one resource unit inside a reservation. VCPUs is
// only meaningful for flavor reservations, where the SU factor is scaled by
// the allocated share of the flavor's vcpus.
type ReservationAllocation struct {
	SUFactor *float64 `json:"su_factor"`
	VCPUs    *float64 `json:"vcpus"`
}

// Reservation is one resource request inside a lease.
type Reservation struct {
	ID                 string                  `json:"id"`
	ResourceType       string                  `json:"resource_type"`
	Allocations        []ReservationAllocation `json:"allocations"`
	ResourceProperties datatypes.JSON          `json:"resource_properties"`
}

// IsFlavor reports whether the reservation bills against a flavor rather
// than a whole physical resource.
func (r Reservation) IsFlavor() bool {
	return strings.HasPrefix(r.ResourceType, "flavor:")
}

type flavorProperties struct {
	ID       string   `json:"id"`
	FlavorID string   `json:"flavor_id"`
	VCPUs    *float64 `json:"vcpus"`
}

// FlavorID parses the flavor identifier out of the reservation's resource
// properties. Empty for bare-metal reservations.
func (r Reservation) FlavorID() string {
	if !r.IsFlavor() || len(r.ResourceProperties) == 0 {
		return ""
	}
	var props flavorProperties
	if err := json.Unmarshal(r.ResourceProperties, &props); err != nil {
		return ""
	}
	if props.FlavorID != "" {
		return props.FlavorID
	}
	return props.ID
}

func (r Reservation) flavorVCPUs() float64 {
	if len(r.ResourceProperties) == 0 {
		return 0
	}
	var props flavorProperties
	if err := json.Unmarshal(r.ResourceProperties, &props); err != nil {
		return 0
	}
	if props.VCPUs == nil {
		return 0
	}
	return *props.VCPUs
}

// HourlyCost is the reservation's SU rate: the sum of its allocations'
// effective SU factors. A missing factor defaults to 1.0; flavor
// reservations scale each factor by the allocated share of the flavor's
// total vcpus.
func (r Reservation) HourlyCost() float64 {
	total := 0.0
	flavorVCPUs := 0.0
	if r.IsFlavor() {
		flavorVCPUs = r.flavorVCPUs()
	}
	for _, alloc := range r.Allocations {
		factor := 1.0
		if alloc.SUFactor != nil {
			factor = *alloc.SUFactor
		}
		if flavorVCPUs > 0 && alloc.VCPUs != nil {
			factor *= *alloc.VCPUs / flavorVCPUs
		}
		total += factor
	}
	return total
}

// Lease is the normalized lease description shared by all three entry
// points. Dates are naive local-time strings in the site timezone.
type Lease struct {
	Name         string        `json:"name"`
	ProjectID    string        `json:"project_id"`
	UserID       string        `json:"user_id"`
	StartDate    string        `json:"start_date"`
	EndDate      string        `json:"end_date"`
	Reservations []Reservation `json:"reservations"`
}

type CreateRequest struct {
	Context RequestContext `json:"context"`
	Lease   Lease          `json:"lease"`
}

type UpdateRequest struct {
	Context      RequestContext `json:"context"`
	CurrentLease Lease          `json:"current_lease"`
	Lease        Lease          `json:"lease"`
}

type StopRequest struct {
	Context RequestContext `json:"context"`
	Lease   Lease          `json:"lease"`
}

// Evaluation is a lease's projected footprint: its UTC window, duration and
// total projected SU cost.
type Evaluation struct {
	Start         time.Time
	End           time.Time
	DurationHours float64
	Amount        float64
}

var ErrInvalidLeaseDate = errors.New("invalid_lease_date")

// EvaluateLease computes a lease's projected cost: duration hours times the
// sum of all reservations' hourly rates. Naive timestamps are interpreted in
// loc and converted to UTC.
func EvaluateLease(lease Lease, loc *time.Location) (Evaluation, error) {
	start, err := ParseLeaseDate(lease.StartDate, loc)
	if err != nil {
		return Evaluation{}, err
	}
	end, err := ParseLeaseDate(lease.EndDate, loc)
	if err != nil {
		return Evaluation{}, err
	}

	duration := end.Sub(start).Hours()
	rate := 0.0
	for _, reservation := range lease.Reservations {
		rate += reservation.HourlyCost()
	}

	return Evaluation{
		Start:         start,
		End:           end,
		DurationHours: duration,
		Amount:        duration * rate,
	}, nil
}

// ParseLeaseDate converts a naive lease timestamp to UTC.
func ParseLeaseDate(value string, loc *time.Location) (time.Time, error) {
	parsed, err := time.ParseInLocation(LeaseDateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, ErrInvalidLeaseDate
	}
	return parsed.UTC(), nil
}

// Service gates the three lease lifecycle events against balances and
// policy, and mutates the charge ledger on success.
type Service interface {
	CheckCreate(ctx context.Context, req CreateRequest) error
	CheckUpdate(ctx context.Context, req UpdateRequest) error
	StopCharging(ctx context.Context, req StopRequest) error
}
