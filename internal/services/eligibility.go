package services

import "prizedraw/internal/models"

// EligiblePersons returns, in roster order, every person that no winner record
// points at. It is recomputed on each draw: imports and record deletions change
// the pool between draws.
func EligiblePersons(persons []models.Person, records []models.WinnerRecord) []models.Person {
	won := make(map[string]struct{}, len(records))
	for _, r := range records {
		won[r.PersonID] = struct{}{}
	}

	eligible := make([]models.Person, 0, len(persons))
	for _, p := range persons {
		if _, ok := won[p.ID]; ok {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible
}
