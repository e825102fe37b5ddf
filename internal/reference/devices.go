package reference

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// DeviceSource looks a device address up in the device database. A nil
// result without error means the device is unknown.
type DeviceSource interface {
	LookupDevice(ctx context.Context, address string) (*DeviceInfo, error)
}

// DeviceLookup fronts a DeviceSource with a bounded, expiring cache. Misses
// are cached too so unknown devices do not hit the source on every beacon.
type DeviceLookup struct {
	src    DeviceSource
	cache  *expirable.LRU[string, *DeviceInfo]
	logger *logger.Logger
}

// NewDeviceLookup creates a device lookup holding at most size entries for ttl
func NewDeviceLookup(src DeviceSource, size int, ttl time.Duration, log *logger.Logger) *DeviceLookup {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DeviceLookup{
		src:    src,
		cache:  expirable.NewLRU[string, *DeviceInfo](size, nil, ttl),
		logger: log.Named("device-lookup"),
	}
}

// Lookup returns the device info for an address or callsign. Source errors
// are logged and reported as a miss without being cached.
func (d *DeviceLookup) Lookup(ctx context.Context, id string) (*DeviceInfo, bool) {
	address := NormalizeID(id)
	if info, ok := d.cache.Get(address); ok {
		return info, info != nil
	}

	info, err := d.src.LookupDevice(ctx, address)
	if err != nil {
		d.logger.Warn("Device lookup failed",
			logger.String("address", address),
			logger.Error(err))
		return nil, false
	}
	d.cache.Add(address, info)
	return info, info != nil
}

// Purge drops every cached entry, used after the device table was replaced
func (d *DeviceLookup) Purge() {
	d.cache.Purge()
}

// Len returns the number of cached entries
func (d *DeviceLookup) Len() int {
	return d.cache.Len()
}
