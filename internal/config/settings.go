package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// FileSettings is a domain.SettingsStore read once from a YAML document:
//
//	tenants:
//	  <tenant id>:
//	    enrollment_fee_price_id: price_...
//	    audition_fee_product_id: prod_...
//	    currency: usd
type FileSettings struct {
	tenants  map[string]domain.TenantSettings
	currency string
}

type settingsFile struct {
	Tenants map[string]domain.TenantSettings `yaml:"tenants"`
}

// LoadSettingsFile parses path. defaultCurrency fills tenants that omit one.
func LoadSettingsFile(path, defaultCurrency string) (*FileSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant settings: %w", err)
	}
	return ParseSettings(raw, defaultCurrency)
}

func ParseSettings(raw []byte, defaultCurrency string) (*FileSettings, error) {
	var f settingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tenant settings: %w", err)
	}
	if f.Tenants == nil {
		f.Tenants = map[string]domain.TenantSettings{}
	}
	return &FileSettings{tenants: f.Tenants, currency: defaultCurrency}, nil
}

// Get returns the zero settings, with the default currency, for unknown tenants.
func (s *FileSettings) Get(_ context.Context, tenantID string) (domain.TenantSettings, error) {
	ts := s.tenants[tenantID]
	if ts.Currency == "" {
		ts.Currency = s.currency
	}
	return ts, nil
}
