// pkg/installations/installations.go
package installations

// DistributorPrefix marks owner accounts that are distributor accounts.
// Business rules may skip processing for these tenants.
const DistributorPrefix = "PA-"

// DefaultMarketplaceIcon is served when a marketplace record carries no icon.
const DefaultMarketplaceIcon = "https://unpkg.com/@cloudblueconnect/material-svg@latest/icons/google/language/baseline.svg"

// Installation is a tenant's connection to the platform. Created and deleted
// by the platform, never by the extension; the extension only reads it and
// rewrites the settings document wholesale.
type Installation struct {
	ID          string      `json:"id"`
	Owner       Account     `json:"owner"`
	Settings    Settings    `json:"settings"`
	Environment Environment `json:"environment"`
}

type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsDistributor reports whether the account id carries the reserved
// distributor prefix.
func (a Account) IsDistributor() bool {
	return len(a.ID) >= len(DistributorPrefix) && a.ID[:len(DistributorPrefix)] == DistributorPrefix
}

type Environment struct {
	ID string `json:"id"`
}

// Settings is the extension-owned document persisted inside the installation
// record. Saved wholesale on every write; last writer wins.
type Settings struct {
	Marketplaces []Marketplace `json:"marketplaces"`
}

// Normalize fills defaults and guarantees a non-nil marketplace list so the
// wire shape is always {"marketplaces": [...]}.
func (s *Settings) Normalize() {
	if s.Marketplaces == nil {
		s.Marketplaces = []Marketplace{}
	}
	for i := range s.Marketplaces {
		if s.Marketplaces[i].Icon == "" {
			s.Marketplaces[i].Icon = DefaultMarketplaceIcon
		}
	}
}

type Marketplace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
}
