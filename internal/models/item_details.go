package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ItemKind tags what a booking's seats are occupied by.
type ItemKind string

const (
	ItemKindPerson ItemKind = "person"
	ItemKindPet    ItemKind = "pet"
	ItemKindCargo  ItemKind = "cargo"
)

// PersonDetails carries passenger-specific booking details.
type PersonDetails struct {
	PassengerNames []string `json:"passenger_names,omitempty"`
	Luggage        int      `json:"luggage,omitempty"`
}

// PetDetails carries pet-transport booking details.
type PetDetails struct {
	Species  string  `json:"species"`
	WeightKg float64 `json:"weight_kg"`
	Carrier  bool    `json:"carrier"`
}

// CargoDetails carries parcel/cargo booking details.
type CargoDetails struct {
	Description string  `json:"description"`
	WeightKg    float64 `json:"weight_kg"`
	Fragile     bool    `json:"fragile"`
}

// ItemDetails is the tagged union of what a booking carries. Exactly one of
// the variant fields matching Kind is set.
type ItemDetails struct {
	Kind   ItemKind       `json:"kind"`
	Person *PersonDetails `json:"person,omitempty"`
	Pet    *PetDetails    `json:"pet,omitempty"`
	Cargo  *CargoDetails  `json:"cargo,omitempty"`
}

// Validate checks that exactly the variant named by Kind is present.
func (d *ItemDetails) Validate() error {
	switch d.Kind {
	case ItemKindPerson, "":
		if d.Pet != nil || d.Cargo != nil {
			return fmt.Errorf("person booking must not carry pet/cargo details")
		}
	case ItemKindPet:
		if d.Pet == nil {
			return fmt.Errorf("pet booking requires pet details")
		}
		if d.Pet.WeightKg <= 0 {
			return fmt.Errorf("pet weight_kg must be positive")
		}
	case ItemKindCargo:
		if d.Cargo == nil {
			return fmt.Errorf("cargo booking requires cargo details")
		}
		if d.Cargo.WeightKg <= 0 {
			return fmt.Errorf("cargo weight_kg must be positive")
		}
	default:
		return fmt.Errorf("unknown item kind: %s", d.Kind)
	}
	return nil
}

// Marshal serializes the variant payload for storage alongside the kind tag.
func (d *ItemDetails) Marshal() (ItemKind, []byte, error) {
	kind := d.Kind
	if kind == "" {
		kind = ItemKindPerson
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal item details: %w", err)
	}
	return kind, payload, nil
}

// UnmarshalItemDetails restores a tagged payload from storage.
func UnmarshalItemDetails(kind ItemKind, payload []byte) (*ItemDetails, error) {
	if len(payload) == 0 {
		return &ItemDetails{Kind: kind}, nil
	}
	var d ItemDetails
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item details: %w", err)
	}
	if d.Kind == "" {
		d.Kind = kind
	}
	return &d, nil
}

// SegmentContext is the independently-typed partial-route selection attached
// to a booking when the passenger rides only part of the trip.
type SegmentContext struct {
	BoardingStopID  uuid.UUID `json:"boarding_stop_id"`
	AlightingStopID uuid.UUID `json:"alighting_stop_id"`
	FarePerSeat     float64   `json:"fare_per_seat"`
}
