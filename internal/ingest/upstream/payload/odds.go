package payload

import "fmt"

// OddsEnvelope é o alvo de decode de GET /odds e GET /odds/live.
type OddsEnvelope struct {
	Response []OddsItem `json:"response"`
}

type OddsItem struct {
	Fixture struct {
		ID int64 `json:"id"`
	} `json:"fixture"`
	Bookmakers []struct {
		ID   int `json:"id"`
		Bets []struct {
			ID     int    `json:"id"`
			Name   string `json:"name"`
			Values []struct {
				Value string `json:"value"`
				Odd   string `json:"odd"`
			} `json:"values"`
		} `json:"bets"`
	} `json:"bookmakers"`
}

// Validate garante os campos obrigatórios: id da fixture. Zero bookmakers
// é tratado como payload vazio porém válido, não malformado — ver Flatten.
func (o OddsItem) Validate() error {
	if o.Fixture.ID <= 0 {
		return fmt.Errorf("odds: missing fixture id")
	}
	return nil
}

// FlatOdds é uma observação de preço (bookmaker, market, outcome), pronta
// para se tornar um model.OddsTick assim que carimbada com um instante.
type FlatOdds struct {
	FixtureID int64
	Bookmaker int
	Market    string
	Outcome   string
	Price     float64
}

// Flatten expande a estrutura aninhada bookmaker/bet/value em um FlatOdds
// por outcome. Valores que falham ao parsear como decimal positivo são
// descartados silenciosamente aqui, sem contagem.
func (o OddsItem) Flatten() []FlatOdds {
	out := make([]FlatOdds, 0, 8)
	for _, bm := range o.Bookmakers {
		for _, bet := range bm.Bets {
			for _, v := range bet.Values {
				price, err := parsePositiveFloat(v.Odd)
				if err != nil {
					continue
				}
				out = append(out, FlatOdds{
					FixtureID: o.Fixture.ID,
					Bookmaker: bm.ID,
					Market:    marketName(bet.ID, bet.Name),
					Outcome:   v.Value,
					Price:     price,
				})
			}
		}
	}
	return out
}

// matchWinnerBetID é o id estável do mercado de resultado final
// (1X2/Match Winner) na API upstream. O feed ao vivo só manda bet.id, nunca
// bet.name; o feed pré-live manda os dois. marketName resolve as duas
// formas para o mesmo rótulo, senão todo tick ao vivo desse mercado seria
// gravado com Market="" e nunca bateria com o filtro de mercado do frame
// aggregator.
const matchWinnerBetID = 1

// marketName resolve um rótulo de mercado estável a partir do id e (quando
// presente) do nome do bet, para que o mesmo mercado sempre grave sob a
// mesma chave independente de qual endpoint forneceu o tick.
func marketName(id int, name string) string {
	if id == matchWinnerBetID {
		return "1X2"
	}
	if name != "" {
		return name
	}
	return fmt.Sprintf("bet:%d", id)
}

func parsePositiveFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	return f, nil
}
