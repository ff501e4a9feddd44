package leaderboard

import "loyaltykit/core"

// Entry represents one customer's XP standing within a center.
type Entry struct {
	Customer core.CustomerID `json:"customer_id"`
	Center   core.CenterID   `json:"center_id"`
	XP       int64           `json:"xp"`
}

func (e Entry) key() string { return core.SubjectKey(e.Customer, e.Center) }

// Board abstracts leaderboard operations.
type Board interface {
	Update(customer core.CustomerID, center core.CenterID, xp int64)
	Remove(customer core.CustomerID, center core.CenterID)
	TopN(n int) []Entry
	Get(customer core.CustomerID, center core.CenterID) (Entry, bool)
}
