package rankings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshkautz/winter-league-rankings/internal/model"
)

func gameAt(id, seasonID string, date time.Time) model.Game {
	home, away := "T1", "T2"
	hs, as := 10, 8
	return model.Game{
		ID:         id,
		SeasonID:   seasonID,
		Date:       date,
		Type:       model.GameRegular,
		HomeTeamID: &home,
		AwayTeamID: &away,
		HomeScore:  &hs,
		AwayScore:  &as,
	}
}

func TestGroupRoundsPartitionsByInstant(t *testing.T) {
	slot1 := time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC)
	slot2 := slot1.Add(time.Hour)

	games := []model.Game{
		gameAt("g3", "S1", slot2),
		gameAt("g1", "S1", slot1),
		gameAt("g2", "S1", slot1),
	}

	rounds := GroupRounds(games)
	require.Len(t, rounds, 2)

	assert.Equal(t, []string{"g1", "g2"}, []string{rounds[0].Games[0].ID, rounds[0].Games[1].ID})
	assert.Equal(t, "g3", rounds[1].Games[0].ID)
	assert.Equal(t, slot1.UnixMilli(), rounds[0].Start())
	assert.Equal(t, slot2.UnixMilli(), rounds[1].Start())
}

func TestGroupRoundsOrderIsChronological(t *testing.T) {
	base := time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC)
	games := []model.Game{
		gameAt("c", "S1", base.Add(2*time.Hour)),
		gameAt("a", "S1", base),
		gameAt("b", "S1", base.Add(time.Hour)),
	}

	rounds := GroupRounds(games)
	require.Len(t, rounds, 3)
	for i := 1; i < len(rounds); i++ {
		assert.Less(t, rounds[i-1].Start(), rounds[i].Start())
		// Document ids sort the same way the rounds do.
		assert.Less(t, rounds[i-1].SnapshotDocID(), rounds[i].SnapshotDocID())
	}
}

func TestGroupRoundsSubSecondInstantsAreDistinct(t *testing.T) {
	base := time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC)
	games := []model.Game{
		gameAt("g1", "S1", base),
		gameAt("g2", "S1", base.Add(time.Millisecond)),
	}

	rounds := GroupRounds(games)
	assert.Len(t, rounds, 2, "instants are compared exactly, not truncated")
}

func TestGroupRoundsCrossSeasonTimeslot(t *testing.T) {
	slot := time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC)
	games := []model.Game{
		gameAt("g2", "S2", slot),
		gameAt("g1", "S1", slot),
	}

	rounds := GroupRounds(games)
	require.Len(t, rounds, 1, "simultaneous games form one round even across seasons")

	// The id-ordered first game supplies the season for the document id.
	assert.Equal(t, "S1", rounds[0].SeasonID())
}

func TestSnapshotDocID(t *testing.T) {
	slot := time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC)
	rounds := GroupRounds([]model.Game{gameAt("g1", "S1", slot)})
	require.Len(t, rounds, 1)

	assert.Equal(t, "1704650400000", rounds[0].ID)
	assert.Equal(t, "1704650400000_S1", rounds[0].SnapshotDocID())
}

func TestGroupRoundsEmpty(t *testing.T) {
	assert.Nil(t, GroupRounds(nil))
	assert.Nil(t, GroupRounds([]model.Game{}))
}
