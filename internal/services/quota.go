package services

import "prizedraw/internal/models"

// QuotaStatus is the live count for one prize.
type QuotaStatus struct {
	PrizeID   string `json:"prizeId"`
	PrizeName string `json:"prizeName"`
	Quota     int    `json:"quota"`
	Committed int    `json:"committed"`
	Remaining int    `json:"remaining"`
	Enabled   bool   `json:"enabled"`
}

// CommittedCount counts the records held against prizeID.
func CommittedCount(prizeID string, records []models.WinnerRecord) int {
	n := 0
	for _, r := range records {
		if r.PrizeID == prizeID {
			n++
		}
	}
	return n
}

// RemainingQuota is max(0, quota - committed). Records can outnumber the
// quota when an administrator lowers it after winners were drawn.
func RemainingQuota(prize models.Prize, records []models.WinnerRecord) int {
	remaining := prize.Quota - CommittedCount(prize.ID, records)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ClampDrawCount is the number of winners a request can actually produce.
func ClampDrawCount(requested, remaining, pool int) int {
	return max(0, min(requested, remaining, pool))
}

// Ledger reports the quota status of every prize, in the given order.
func Ledger(prizes []models.Prize, records []models.WinnerRecord) []QuotaStatus {
	committed := make(map[string]int, len(prizes))
	for _, r := range records {
		committed[r.PrizeID]++
	}

	out := make([]QuotaStatus, 0, len(prizes))
	for _, p := range prizes {
		c := committed[p.ID]
		out = append(out, QuotaStatus{
			PrizeID:   p.ID,
			PrizeName: p.Name,
			Quota:     p.Quota,
			Committed: c,
			Remaining: max(0, p.Quota-c),
			Enabled:   p.Enabled,
		})
	}
	return out
}
