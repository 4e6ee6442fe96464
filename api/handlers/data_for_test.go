package handlers

import (
	"testing"

	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/db/primarydb/primarydbtest"
)

var defaultTestRequestHeaders = map[string]string{"Content-Type": "application/json"}

const (
	testTeamID = 1
	// orphanTeamID has no owner, so its mods cannot be mapped to documents.
	orphanTeamID = 2
)

const (
	modMagicWands primarydb.ModID = 1001
	modSteam      primarydb.ModID = 1002
	modDraftMagic primarydb.ModID = 1003
	modDragons    primarydb.ModID = 1004
	modOrphan     primarydb.ModID = 1005
)

var testMods = []primarydb.NewMod{
	{
		ID:          modMagicWands,
		TeamID:      testTeamID,
		Title:       "Magic Wands",
		Description: "Adds enchanted wands and spell books",
		Status:      primarydb.StatusApproved,
		Categories:  []string{"magic"},
	},
	{
		ID:          modSteam,
		TeamID:      testTeamID,
		Title:       "Steam Engines",
		Description: "Boilers, pistons and pressure pipes",
		Status:      primarydb.StatusApproved,
		Categories:  []string{"technology"},
	},
	{
		ID:          modDraftMagic,
		TeamID:      testTeamID,
		Title:       "Unfinished Magic",
		Description: "Work in progress spells",
		Status:      primarydb.StatusDraft,
		Categories:  []string{"magic"},
	},
	{
		ID:          modDragons,
		TeamID:      testTeamID,
		Title:       "Dragon Quest",
		Description: "Tame dragons with magic scrolls",
		Status:      primarydb.StatusApproved,
		Categories:  []string{"adventure", "magic"},
	},
	{
		ID:          modOrphan,
		TeamID:      orphanTeamID,
		Title:       "Lost Lanterns",
		Description: "Lanterns nobody owns anymore",
		Status:      primarydb.StatusApproved,
	},
}

// searchableTestMods is the number of testMods a full reindex should index.
const searchableTestMods = 3

func seedTestData(t *testing.T, store *primarydb.Store) {
	t.Helper()

	primarydbtest.Owner(t, store, testTeamID, 100, "alice")
	for _, mod := range testMods {
		primarydbtest.Mod(t, store, mod)
	}
}
