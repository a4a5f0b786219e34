// Package catalog reads the property/unit catalog. Units and properties are
// managed by the catalog service; leasing only needs ownership and occupancy.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUnitNotFound is returned when the unit does not exist
var ErrUnitNotFound = errors.New("rental unit not found")

// Unit is the catalog view of a rental unit
type Unit struct {
	ID            int64  `json:"id"`
	PropertyID    int64  `json:"property_id"`
	PropertyTitle string `json:"property_title"`
	UnitNumber    string `json:"unit_number"`
	OwnerID       int64  `json:"owner_id"`
	IsOccupied    bool   `json:"is_occupied"`
}

// Repository handles unit lookups and occupancy updates
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new catalog repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetUnit retrieves a unit together with its property owner
func (r *Repository) GetUnit(ctx context.Context, unitID int64) (*Unit, error) {
	query := `
		SELECT u.id, u.property_id, p.title, u.unit_number, p.owner_id, u.is_occupied
		FROM rental_units u
		JOIN properties p ON u.property_id = p.id
		WHERE u.id = $1
	`

	unit := &Unit{}
	err := r.db.QueryRowContext(ctx, query, unitID).Scan(
		&unit.ID,
		&unit.PropertyID,
		&unit.PropertyTitle,
		&unit.UnitNumber,
		&unit.OwnerID,
		&unit.IsOccupied,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}

	return unit, nil
}

// UnitOwner returns the owner of the property the unit belongs to
func (r *Repository) UnitOwner(ctx context.Context, unitID int64) (int64, error) {
	unit, err := r.GetUnit(ctx, unitID)
	if err != nil {
		return 0, err
	}
	return unit.OwnerID, nil
}

// SetOccupied flags a unit as occupied or vacant
func (r *Repository) SetOccupied(ctx context.Context, unitID int64, occupied bool) error {
	query := `UPDATE rental_units SET is_occupied = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, unitID, occupied)
	if err != nil {
		return fmt.Errorf("failed to update unit occupancy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnitNotFound
	}
	return nil
}
