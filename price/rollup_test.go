package price

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollup_MeanPerLocalDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	points := []Point{
		// 2024-01-01 23:00 JST and 2024-01-02 00:00 JST straddle local midnight.
		{Time: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), Symbol: "symbol", Currency: "jpy", Price: 2},
		{Time: time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), Symbol: "symbol", Currency: "jpy", Price: 10},
		{Time: time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC), Symbol: "symbol", Currency: "jpy", Price: 20},
		{Time: time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC), Symbol: "symbol", Currency: "jpy", Price: 30},
		{Time: time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), Symbol: "symbol", Currency: "usd", Price: 1},
	}

	days := Rollup(points, tokyo)
	require.Len(t, days, 3)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, tokyo), days[0].Day)
	assert.Equal(t, 2.0, days[0].Price)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, tokyo), days[1].Day)
	assert.Equal(t, "jpy", days[1].Currency)
	assert.Equal(t, 20.0, days[1].Price, "true mean, not a running pairwise average")

	assert.Equal(t, "usd", days[2].Currency)
	assert.Equal(t, 1.0, days[2].Price)
}

func TestRollup_Empty(t *testing.T) {
	assert.Empty(t, Rollup(nil, time.UTC))
}

func TestDailyPrice_MarshalJSON(t *testing.T) {
	d := DailyPrice{
		Day:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Symbol:   "symbol",
		Currency: "jpy",
		Price:    3.14159265,
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"unixTime":1704153600000,"symbol":"symbol","currency":"jpy","price":3.141593}`, string(data))
}

func TestPairs(t *testing.T) {
	pairs := Pairs([]string{"symbol", "nem"}, []string{"jpy", "usd"})
	assert.Equal(t, []Pair{
		{"symbol", "jpy"}, {"symbol", "usd"}, {"nem", "jpy"}, {"nem", "usd"},
	}, pairs)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 3.141593, Round(3.14159265, 6))
	assert.Equal(t, -2.3, Round(-2.25, 1))
}
