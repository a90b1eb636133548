package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
)

//go:embed service_areas.json
var serviceAreasJSON []byte

type staticRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Area     string   `json:"area"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Services []string `json:"services"`
	Rating   float64  `json:"rating"`
	Verified bool     `json:"verified"`
}

// NewStatic loads the built-in service areas into an in-memory index.
func NewStatic() (*geo.Index, error) {
	return LoadStatic(serviceAreasJSON)
}

func LoadStatic(data []byte) (*geo.Index, error) {
	var raw []staticRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode service areas: %w", err)
	}
	records := make([]models.ProviderRecord, 0, len(raw))
	for _, r := range raw {
		p := models.ProviderRecord{ID: r.ID, Name: r.Name, Area: r.Area, Services: r.Services, Rating: r.Rating, Verified: r.Verified}
		if r.Lat != nil && r.Lon != nil {
			p.Position = &models.GeoPoint{Lat: *r.Lat, Lon: *r.Lon}
		}
		records = append(records, p)
	}
	idx := geo.NewIndex()
	for _, p := range Normalize(records) {
		if err := idx.Upsert(context.Background(), p); err != nil {
			return nil, err
		}
	}
	return idx, nil
}
