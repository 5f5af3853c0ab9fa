// Package temporal maps instants to civil dates in named time zones.
//
// Zones are configuration data: only names registered in a ZoneRegistry are
// accepted, and every conversion goes through the zone database
// (time.LoadLocation), never through fixed-offset arithmetic, so daylight
// saving transitions produce 23- and 25-hour days where they should.
package temporal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sakif/attendance-ledger/internal/apperror"
)

// ZoneRegistry is the set of IANA zone names the ledger will answer
// queries in. It is immutable after construction and safe for concurrent use.
type ZoneRegistry struct {
	zones map[string]*time.Location
	org   string
}

// NewZoneRegistry loads every name in allowed plus orgZone, the zone the
// (user, organization-local date) index is computed in. An unknown name is
// a configuration error.
func NewZoneRegistry(orgZone string, allowed []string) (*ZoneRegistry, error) {
	orgZone = strings.TrimSpace(orgZone)
	if orgZone == "" {
		return nil, errors.New("temporal: organization zone is required")
	}

	r := &ZoneRegistry{zones: make(map[string]*time.Location, len(allowed)+1), org: orgZone}
	for _, name := range append([]string{orgZone}, allowed...) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.zones[name]; ok {
			continue
		}
		// "Local" would make answers depend on the server's TZ.
		if name == "Local" {
			return nil, fmt.Errorf("temporal: zone %q is not allowed", name)
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("temporal: loading zone %q: %w", name, err)
		}
		r.zones[name] = loc
	}
	return r, nil
}

// Lookup returns the location for a registered zone name.
func (r *ZoneRegistry) Lookup(name string) (*time.Location, error) {
	loc, ok := r.zones[name]
	if !ok {
		return nil, apperror.ValidationFailed("zone", fmt.Sprintf("zone %q is not a recognized time zone", name))
	}
	return loc, nil
}

// Organization returns the organization zone name and location.
func (r *ZoneRegistry) Organization() (string, *time.Location) {
	return r.org, r.zones[r.org]
}

// Names lists the registered zone names, sorted.
func (r *ZoneRegistry) Names() []string {
	names := make([]string, 0, len(r.zones))
	for n := range r.zones {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
