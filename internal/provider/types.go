package provider

// Paths of the market-data endpoints the scanner consumes.
const (
	PathTokenOverview = "defi/token_overview"
	PathTokenTrades   = "defi/txs/token"
)

// envelope is the common response wrapper of the market-data API.
type envelope struct {
	Success bool `json:"success"`
}

// TokenOverview is the per-token summary from defi/token_overview.
type TokenOverview struct {
	Address   string  `json:"address"`
	Liquidity float64 `json:"liquidity"`
	Holder    int64   `json:"holder"`
	Price     float64 `json:"price"`
	Trade1h   int64   `json:"trade1h"`
	Volume1h  float64 `json:"v1hUSD"`
}

type overviewEnvelope struct {
	envelope
	Data TokenOverview `json:"data"`
}

// TradeItem is one swap from defi/txs/token.
type TradeItem struct {
	BlockUnixTime int64   `json:"blockUnixTime"`
	VolumeInUSD   float64 `json:"volumeInUSD"`
	TxType        string  `json:"txType"`
	TxHash        string  `json:"txHash"`
	Source        string  `json:"source"`
}

type tradesEnvelope struct {
	envelope
	Data struct {
		Items   []TradeItem `json:"items"`
		HasNext bool        `json:"hasNext"`
	} `json:"data"`
}
