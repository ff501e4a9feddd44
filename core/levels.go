package core

// LevelThreshold maps a level to the minimum XP that reaches it.
// The table is strictly increasing in both fields.
type LevelThreshold struct {
	Level int    `json:"level"`
	MinXP int64  `json:"min_xp"`
	Name  string `json:"name"`
}

// LevelThresholds is the shipped level table. Level is a pure function of
// total XP; the stored level column is only a cache of this computation.
var LevelThresholds = []LevelThreshold{
	{Level: 1, MinXP: 0, Name: "Rookie"},
	{Level: 2, MinXP: 100, Name: "Regular"},
	{Level: 3, MinXP: 250, Name: "Insider"},
	{Level: 4, MinXP: 500, Name: "Enthusiast"},
	{Level: 5, MinXP: 1000, Name: "Expert"},
	{Level: 6, MinXP: 2000, Name: "Veteran"},
	{Level: 7, MinXP: 3500, Name: "Elite"},
	{Level: 8, MinXP: 5500, Name: "Master"},
	{Level: 9, MinXP: 8000, Name: "Champion"},
	{Level: 10, MinXP: 12000, Name: "Legend"},
}

// LevelInfo describes where a given XP total sits in the level table.
type LevelInfo struct {
	Level           int    `json:"level"`
	Name            string `json:"name"`
	XPInLevel       int64  `json:"xp_in_level"`
	XPToNext        int64  `json:"xp_to_next"`
	ProgressPercent int    `json:"progress_percent"`
	NextLevelName   string `json:"next_level_name,omitempty"`
}

// LevelForXP scans the threshold table from highest to lowest and returns
// the first level whose minimum XP is reached. Negative XP is a caller
// contract violation; it is clamped to 0 rather than rejected.
func LevelForXP(xp int64) LevelInfo {
	if xp < 0 {
		xp = 0
	}
	for i := len(LevelThresholds) - 1; i >= 0; i-- {
		th := LevelThresholds[i]
		if xp < th.MinXP {
			continue
		}
		info := LevelInfo{
			Level:     th.Level,
			Name:      th.Name,
			XPInLevel: xp - th.MinXP,
		}
		if i == len(LevelThresholds)-1 {
			// Max defined level: nothing further to climb.
			info.ProgressPercent = 100
			return info
		}
		next := LevelThresholds[i+1]
		info.XPToNext = next.MinXP - th.MinXP
		info.NextLevelName = next.Name
		pct := int(100 * info.XPInLevel / info.XPToNext)
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		info.ProgressPercent = pct
		return info
	}
	// Unreachable while the table starts at MinXP 0.
	return LevelInfo{Level: 1, Name: LevelThresholds[0].Name, ProgressPercent: 0}
}
