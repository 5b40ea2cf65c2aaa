package payload

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
)

// O feed ao vivo nunca manda bet.name, só bet.id; o feed pré-live manda os
// dois. As duas formas do mercado de resultado final (bet id 1) têm que
// bater no mesmo rótulo "1X2", senão o frame aggregator nunca encontra os
// ticks ao vivo que grava.
func TestFlattenLiveFeedMatchWinnerHasNoName(t *testing.T) {
	var item OddsItem
	require.NoError(t, sonic.Unmarshal([]byte(`{
		"fixture": {"id": 1},
		"bookmakers": [{
			"id": 6,
			"bets": [{
				"id": 1,
				"values": [
					{"value": "1", "odd": "2.10"},
					{"value": "X", "odd": "3.40"},
					{"value": "2", "odd": "3.20"}
				]
			}]
		}]
	}`), &item))

	flat := item.Flatten()
	require.Len(t, flat, 3)
	for _, f := range flat {
		require.Equal(t, "1X2", f.Market)
	}
}

func TestFlattenPrematchMatchWinnerHasName(t *testing.T) {
	var item OddsItem
	require.NoError(t, sonic.Unmarshal([]byte(`{
		"fixture": {"id": 1},
		"bookmakers": [{
			"id": 6,
			"bets": [{
				"id": 1,
				"name": "Match Winner",
				"values": [{"value": "1", "odd": "2.10"}]
			}]
		}]
	}`), &item))

	flat := item.Flatten()
	require.Len(t, flat, 1)
	require.Equal(t, "1X2", flat[0].Market)
}

func TestFlattenUnknownBetIDFallsBackToNameThenSyntheticLabel(t *testing.T) {
	var item OddsItem
	require.NoError(t, sonic.Unmarshal([]byte(`{
		"fixture": {"id": 1},
		"bookmakers": [{
			"id": 6,
			"bets": [
				{"id": 5, "name": "Double Chance", "values": [{"value": "1X", "odd": "1.30"}]},
				{"id": 5, "values": [{"value": "1X", "odd": "1.30"}]}
			]
		}]
	}`), &item))

	flat := item.Flatten()
	require.Len(t, flat, 2)
	require.Equal(t, "Double Chance", flat[0].Market)
	require.Equal(t, "bet:5", flat[1].Market)
}
