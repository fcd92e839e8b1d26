// Package facilities is the static catalog of bookable facilities: the
// remote product id each one maps to and the interchangeable courts behind
// it. Court ids are lazily resolved from the booking site and cached.
package facilities

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Facility is one bookable category. Courts within a facility are
// interchangeable for contention purposes.
type Facility struct {
	Name      string   `json:"-"`
	ProductID string   `json:"product_id"`
	CourtIDs  []string `json:"court_ids,omitempty"`
	Courts    int      `json:"courts"`
}

// MultiCourt reports whether contention resolution should spread attempts
// across several courts.
func (f Facility) MultiCourt() bool { return f.Courts > 1 }

type Directory struct {
	mu     sync.RWMutex
	byName map[string]Facility
}

// Builtin returns the directory of known Active Illini facilities.
func Builtin() *Directory {
	d := &Directory{byName: map[string]Facility{}}
	for name, f := range builtinCatalog {
		f.Name = name
		d.byName[name] = f
	}
	return d
}

// Load reads a JSON catalog file mapping facility name to its entry and
// returns a directory built from it. Used to version the catalog outside
// the binary.
func Load(path string) (*Directory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]Facility
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("facilities: parse %s: %w", path, err)
	}
	d := &Directory{byName: map[string]Facility{}}
	for name, f := range raw {
		if f.ProductID == "" {
			return nil, fmt.Errorf("facilities: %s has no product_id", name)
		}
		if f.Courts < 1 {
			f.Courts = 1
		}
		f.Name = name
		d.byName[name] = f
	}
	return d, nil
}

func (d *Directory) Get(name string) (Facility, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.byName[name]
	return f, ok
}

func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.byName))
	for n := range d.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CacheCourts stores court ids resolved from the booking site so later
// attempts skip the discovery round trip.
func (d *Directory) CacheCourts(name string, ids []string) {
	if len(ids) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.byName[name]
	if !ok {
		return
	}
	f.CourtIDs = append([]string(nil), ids...)
	if len(ids) > f.Courts {
		f.Courts = len(ids)
	}
	d.byName[name] = f
}

// Product ids come from the booking site's facility pages.
var builtinCatalog = map[string]Facility{
	"ARC_GYM_2_VOLLEYBALL_COURTS": {ProductID: "ae779f17-f3a2-4758-be2a-9670cf64fcdf", Courts: 2},
	"ARC_MP1": {
		ProductID: "b005129c-6510-4b20-8658-3d1570b4c0c2",
		CourtIDs:  []string{"547b9b68-bf48-4dab-9a64-23deed1a99df"},
		Courts:    1,
	},
	"ARC_MP2":                      {ProductID: "6aea73d7-baac-47b2-9689-f66b04ced0d8", Courts: 1},
	"ARC_MP3_TABLE_TENNIS_ONLY":    {ProductID: "49f02e87-c344-4087-a691-ac0f2f6a73da", Courts: 1},
	"ARC_MP4":                      {ProductID: "9ca0d0d2-28b3-429b-91bb-2a45c0dbd0d6", Courts: 1},
	"ARC_MP5":                      {ProductID: "075efde4-a683-4db2-9e3c-a27e0ad387da", Courts: 1},
	"ARC_PICKLEBALL_BADMINTON":     {ProductID: "1c288a93-2323-4d2f-a4fb-61e1f86b5c42", Courts: 8},
	"ARC_RACQUETBALL_TABLE_TENNIS": {ProductID: "87656121-9423-4007-bff5-25a69e8d74db", Courts: 4},
	"ARC_REFLECTION_RECOVERY_ROOM": {ProductID: "4a16f0b3-6859-470b-a750-9d705cc6bf32", Courts: 1},
	"ARC_SQUASH_COURTS":            {ProductID: "f874ef0c-d088-4e1b-84d6-e7c1f0d1940c", Courts: 4},
	"CRCE_MP1":                     {ProductID: "d56445b6-20fb-49bc-bf60-d57189aceb78", Courts: 1},
	"CRCE_MP2":                     {ProductID: "966316d6-bffc-42f0-b2c6-a6cad53f9c42", Courts: 1},
	"CRCE_RACQUETBALL":             {ProductID: "56a2c9df-63c7-421b-9fcc-f5305e80d961", Courts: 2},
	"CRCE_SQUASH_RB_MP_COURT":      {ProductID: "caf86dbf-3395-435b-a646-6ae8de13675f", Courts: 2},
	"ICE_ARENA_FREESTYLE_SKATING":  {ProductID: "d2353cb4-0992-4074-85a7-b9e2645a945f", Courts: 1},
}
