package establishment

import (
	"context"
	"sort"
	"sync"

	"github.com/vasiliy-maslov/food-circles/internal/config"
)

type MemoryDirectory struct {
	mu             sync.RWMutex
	establishments map[string]Establishment
	menus          map[string]map[string]float64
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		establishments: make(map[string]Establishment),
		menus:          make(map[string]map[string]float64),
	}
}

// NewSeededDirectory builds a memory directory from the seed section of the config.
func NewSeededDirectory(seed config.SeedConfig) *MemoryDirectory {
	d := NewMemoryDirectory()
	for _, s := range seed.Establishments {
		d.Add(Establishment{ID: s.ID, CityID: s.CityID, Name: s.Name, Lat: s.Lat, Lon: s.Lon}, s.Menu)
	}
	return d
}

func (d *MemoryDirectory) Add(e Establishment, menu map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.establishments[e.ID] = e
	prices := make(map[string]float64, len(menu))
	for k, v := range menu {
		prices[k] = v
	}
	d.menus[e.ID] = prices
}

func (d *MemoryDirectory) Get(ctx context.Context, id string) (*Establishment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.establishments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (d *MemoryDirectory) CityExists(ctx context.Context, cityID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, e := range d.establishments {
		if e.CityID == cityID {
			return true, nil
		}
	}
	return false, nil
}

func (d *MemoryDirectory) ListByCity(ctx context.Context, cityID string) ([]Establishment, error) {
	d.mu.RLock()
	result := make([]Establishment, 0)
	for _, e := range d.establishments {
		if e.CityID == cityID {
			result = append(result, e)
		}
	}
	d.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (d *MemoryDirectory) MenuPrices(ctx context.Context, establishmentID string, productIDs []string) (map[string]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	menu := d.menus[establishmentID]
	prices := make(map[string]float64, len(productIDs))
	for _, id := range productIDs {
		if price, ok := menu[id]; ok {
			prices[id] = price
		}
	}
	return prices, missingProducts(prices, productIDs)
}
