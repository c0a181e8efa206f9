// Package zone implements spatial areas (trigger volumes, safe spots, bind
// anchors) with geometric bounds, the spatial partitions a region is cut
// into, and a grid index that answers "which areas contain this point" for
// one copy of a region.
package zone

// Area kind constants. Values match the kind column of the template data.
const (
	KindTrigger = "TriggerArea"
	KindSafe    = "SafeArea"
	KindPvP     = "PvPArea"
	KindDamage  = "DamageArea"
	KindWater   = "WaterArea"
	KindNoStore = "NoStoreArea"
	KindBind    = "BindArea"
	KindRespawn = "RespawnArea"
)

// Clonable reports whether areas of the given kind are copied into
// instances. Bind and respawn anchors tie a character to the permanent
// world and stay behind.
func Clonable(kind string) bool {
	switch kind {
	case KindBind, KindRespawn:
		return false
	default:
		return true
	}
}
