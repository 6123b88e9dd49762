package loyalty

import "time"

type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// points per tier floor
const (
	silverMin   = 500
	goldMin     = 1000
	platinumMin = 2500
)

// PointsPerUnit: one point per 10 currency units spent.
const PointsPerUnit = 10.0

type Account struct {
	Username   string    `json:"username"`
	Points     int       `json:"points"`
	Tier       Tier      `json:"tier"`
	TotalSpent float64   `json:"total_spent"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func PointsFromTotal(orderTotal float64) int {
	if orderTotal <= 0 {
		return 0
	}
	return int(orderTotal / PointsPerUnit)
}

// TierFromPoints is a pure function of the balance; there is no
// hysteresis, redeeming points can demote.
func TierFromPoints(points int) Tier {
	switch {
	case points >= platinumMin:
		return TierPlatinum
	case points >= goldMin:
		return TierGold
	case points >= silverMin:
		return TierSilver
	default:
		return TierBronze
	}
}
