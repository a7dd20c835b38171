package platform

import (
	"chartex/pkg/installations"
)

func settingsFixture() installations.Settings {
	return installations.Settings{Marketplaces: []installations.Marketplace{
		{ID: "MP-000", Name: "MP 000", Description: "MP 000 description", Icon: "mp_000.png"},
	}}
}
