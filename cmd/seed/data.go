package main

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Users     []seedUser     `yaml:"users" validate:"dive"`
	Vendors   []seedVendor   `yaml:"vendors" validate:"dive"`
	Materials []seedMaterial `yaml:"materials" validate:"dive"`
	Products  []seedProduct  `yaml:"products" validate:"dive"`
}

type seedUser struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required,min=6"`
	Role     string `yaml:"role" validate:"oneof=owner staff"`
}

type seedVendor struct {
	Name         string `yaml:"name" validate:"required"`
	Phone        string `yaml:"phone"`
	Email        string `yaml:"email" validate:"omitempty,email"`
	LeadTimeDays int    `yaml:"lead_time_days" validate:"gte=0"`
}

type seedMaterial struct {
	Name          string  `yaml:"name" validate:"required"`
	Unit          string  `yaml:"unit" validate:"required"`
	CurrentStock  float64 `yaml:"current_stock" validate:"gte=0"`
	SafetyStock   float64 `yaml:"safety_stock" validate:"gte=0"`
	AvgDailyUsage float64 `yaml:"avg_daily_usage" validate:"gte=0"`
	CostPerUnit   float64 `yaml:"cost_per_unit" validate:"gte=0"`
}

type seedProduct struct {
	Name        string             `yaml:"name" validate:"required"`
	Category    string             `yaml:"category" validate:"required"`
	Price       string             `yaml:"price" validate:"required"`
	Description string             `yaml:"description"`
	Recipe      map[string]float64 `yaml:"recipe" validate:"required,min=1"`
}

type ingredient struct {
	Material string
	Quantity float64
}

// sortedRecipe returns the recipe ordered by material name.
func (p seedProduct) sortedRecipe() []ingredient {
	out := make([]ingredient, 0, len(p.Recipe))
	for name, qty := range p.Recipe {
		out = append(out, ingredient{Material: name, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Material < out[j].Material })
	return out
}

func parseSeed(data []byte) (seedFile, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	if err := shared.ValidateStruct(seed); err != nil {
		return seedFile{}, err
	}
	materials := make(map[string]struct{}, len(seed.Materials))
	for _, m := range seed.Materials {
		if _, dup := materials[m.Name]; dup {
			return seedFile{}, fmt.Errorf("%w: duplicate material %q", shared.ErrValidation, m.Name)
		}
		materials[m.Name] = struct{}{}
	}
	for _, p := range seed.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			return seedFile{}, fmt.Errorf("%w: product %q has invalid price %q", shared.ErrValidation, p.Name, p.Price)
		}
		for name, qty := range p.Recipe {
			if _, ok := materials[name]; !ok {
				return seedFile{}, fmt.Errorf("%w: product %q uses unknown material %q", shared.ErrValidation, p.Name, name)
			}
			if qty <= 0 {
				return seedFile{}, fmt.Errorf("%w: product %q needs a positive quantity of %q", shared.ErrValidation, p.Name, name)
			}
		}
	}
	return seed, nil
}
