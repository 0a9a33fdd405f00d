package config

import (
	"fmt"
	"os"

	"urbanharvest/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type seedCoordinates struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

type seedItem struct {
	ID           string           `yaml:"id"`
	Title        string           `yaml:"title"`
	Description  string           `yaml:"description"`
	Price        string           `yaml:"price"`
	Image        string           `yaml:"image"`
	Availability string           `yaml:"availability"`
	Date         string           `yaml:"date"`
	Location     string           `yaml:"location"`
	Coordinates  *seedCoordinates `yaml:"coordinates"`
}

type seedFile struct {
	Products  []seedItem `yaml:"products"`
	Workshops []seedItem `yaml:"workshops"`
	Events    []seedItem `yaml:"events"`
}

// LoadCatalogSeed reads catalog items from a YAML file grouped by category.
func LoadCatalogSeed(path string) ([]models.CatalogItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	return ParseCatalogSeed(data)
}

func ParseCatalogSeed(data []byte) ([]models.CatalogItem, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}

	groups := []struct {
		t     models.ItemType
		items []seedItem
	}{
		{models.ItemTypeProduct, f.Products},
		{models.ItemTypeWorkshop, f.Workshops},
		{models.ItemTypeEvent, f.Events},
	}

	var out []models.CatalogItem
	for _, g := range groups {
		for _, s := range g.items {
			price, err := decimal.NewFromString(s.Price)
			if err != nil {
				return nil, fmt.Errorf("seed %s: bad price %q", s.ID, s.Price)
			}
			item := models.CatalogItem{
				ID:           s.ID,
				Type:         g.t,
				Title:        s.Title,
				Description:  s.Description,
				Price:        price,
				Image:        s.Image,
				Category:     g.t.Category(),
				Availability: s.Availability,
				Date:         s.Date,
				Location:     s.Location,
			}
			if s.Coordinates != nil {
				item.Coordinates = &models.Coordinates{Lat: s.Coordinates.Lat, Lng: s.Coordinates.Lng}
			}
			out = append(out, item)
		}
	}
	return out, nil
}
