package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/yegors/ogn-tracker/internal/reference"
)

// LookupDevice returns the device database entry for an address, or nil when
// the address is unknown
func (s *Storage) LookupDevice(ctx context.Context, address string) (*reference.DeviceInfo, error) {
	var (
		info                reference.DeviceInfo
		deviceType, model   sql.NullString
		registration, cn    sql.NullString
		tracked, identified int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT device_id, device_type, aircraft_model, registration, competition_number, tracked, identified
		FROM devices WHERE device_id = ?`, reference.NormalizeID(address),
	).Scan(&info.DeviceID, &deviceType, &model, &registration, &cn, &tracked, &identified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device %s: %w", address, err)
	}

	info.DeviceType = deviceType.String
	info.Model = model.String
	info.Registration = registration.String
	info.CN = cn.String
	info.Tracked = tracked == 1
	info.Identified = identified == 1
	return &info, nil
}

// ReplaceDevices replaces the device database
func (s *Storage) ReplaceDevices(ctx context.Context, devices []reference.DeviceInfo) error {
	return s.replace(ctx, "devices", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO devices (
				device_id, device_type, aircraft_model, registration, competition_number, tracked, identified
			) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare device insert statement: %w", err)
		}
		defer stmt.Close()

		for _, d := range devices {
			id := strings.ToUpper(strings.TrimSpace(d.DeviceID))
			if id == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, id, d.DeviceType, d.Model, d.Registration, d.CN,
				boolToInt(d.Tracked), boolToInt(d.Identified)); err != nil {
				return fmt.Errorf("failed to insert device %s: %w", id, err)
			}
		}
		return nil
	}, len(devices))
}

// DeviceCount returns the number of stored devices
func (s *Storage) DeviceCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return n, nil
}
