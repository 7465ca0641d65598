package redis

// Key prefixes. Operational tooling enumerates keys by these prefixes, so
// they are part of the stored format.
const (
	PrefixPlayer    = "player:"
	PrefixSession   = "session:"
	PrefixInventory = "inventory:"
	PrefixItem      = "item:"
	PrefixQuest     = "quest:"
	PrefixQuests    = "quests:"
	PrefixLocation  = "location:"

	KeyLeaderboard = "leaderboard"
	KeyPlayers     = "players"
)

// Profile hash fields.
const (
	fieldID                = "id"
	fieldName              = "name"
	fieldScore             = "score"
	fieldLevel             = "level"
	fieldStatus            = "status"
	fieldLocation          = "location"
	fieldCurrentQuest      = "currentQuest"
	fieldInventoryCapacity = "inventoryCapacity"
	fieldCreatedAt         = "createdAt"
	fieldUpdatedAt         = "updatedAt"
	fieldSchemaVersion     = "schemaVersion"
)

// Session hash fields.
const (
	fieldStartedAt    = "startedAt"
	fieldLastActionAt = "lastActionAt"
	fieldTurn         = "turn"
)

// Item hash fields.
const (
	fieldDescription = "description"
	fieldType        = "type"
	fieldAcquiredAt  = "acquiredAt"
)

// Active quest hash field holding the codec blob.
const fieldData = "data"

func playerKey(playerID string) string    { return PrefixPlayer + playerID }
func sessionKey(playerID string) string   { return PrefixSession + playerID }
func historyKey(playerID string) string   { return PrefixSession + playerID + ":history" }
func inventoryKey(playerID string) string { return PrefixInventory + playerID }
func itemKey(playerID, itemID string) string {
	return PrefixItem + playerID + ":" + itemID
}
func activeQuestKey(playerID string) string     { return PrefixQuest + "active:" + playerID }
func completedQuestsKey(playerID string) string { return PrefixQuest + "completed:" + playerID }
func completedSetKey(playerID string) string    { return PrefixQuests + "completed:" + playerID }
func locationKey(location string) string        { return PrefixLocation + location }

// Category groups keys that share a prefix for bulk inspection.
type Category struct {
	Name    string
	Pattern string
}

// Categories lists every key category in a stable order.
func Categories() []Category {
	return []Category{
		{Name: "player", Pattern: PrefixPlayer + "*"},
		{Name: "session", Pattern: PrefixSession + "*"},
		{Name: "inventory", Pattern: PrefixInventory + "*"},
		{Name: "item", Pattern: PrefixItem + "*"},
		{Name: "quest", Pattern: PrefixQuest + "*"},
		{Name: "quests", Pattern: PrefixQuests + "*"},
		{Name: "location", Pattern: PrefixLocation + "*"},
		{Name: "leaderboard", Pattern: KeyLeaderboard},
		{Name: "players", Pattern: KeyPlayers},
	}
}
