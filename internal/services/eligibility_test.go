package services

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prizedraw/internal/models"
)

func TestEligiblePersons_ExactComplement(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		persons := roster(rng.Intn(40))
		var records []models.WinnerRecord
		won := map[string]bool{}
		for _, p := range persons {
			if rng.Intn(3) == 0 {
				records = append(records, models.WinnerRecord{PersonID: p.ID, PrizeID: "x"})
				won[p.ID] = true
			}
		}
		// records for people no longer on the roster must not matter
		records = append(records, models.WinnerRecord{PersonID: "gone", PrizeID: "x"})

		eligible := EligiblePersons(persons, records)

		in := map[string]bool{}
		for _, p := range eligible {
			require.False(t, won[p.ID], "winner %s is in the pool", p.ID)
			in[p.ID] = true
		}
		for _, p := range persons {
			if !won[p.ID] {
				require.True(t, in[p.ID], "non-winner %s missing from the pool", p.ID)
			}
		}
		require.Len(t, eligible, len(persons)-len(won))
	}
}

func TestEligiblePersons_KeepsRosterOrderAndIsIdempotent(t *testing.T) {
	persons := roster(6)
	records := []models.WinnerRecord{{PersonID: "p001"}, {PersonID: "p004"}}

	first := EligiblePersons(persons, records)
	second := EligiblePersons(persons, records)

	assert.Equal(t, first, second)
	ids := make([]string, len(first))
	for i, p := range first {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"p000", "p002", "p003", "p005"}, ids)
}

func TestEligiblePersons_IgnoresWinnerFlag(t *testing.T) {
	// eligibility follows records; a stale flag left by record-only
	// deletion does not keep someone out of the pool
	persons := roster(2)
	persons[0].IsWinner = true

	assert.Len(t, EligiblePersons(persons, nil), 2)
}
