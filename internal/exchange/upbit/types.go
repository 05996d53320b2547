package upbit

import "github.com/shopspring/decimal"

type marketInfo struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
}

type tickerInfo struct {
	Market           string          `json:"market"`
	TradePrice       decimal.Decimal `json:"trade_price"`
	OpeningPrice     decimal.Decimal `json:"opening_price"`
	AccTradePrice24h decimal.Decimal `json:"acc_trade_price_24h"`
	Timestamp        int64           `json:"timestamp"`
}

type candleInfo struct {
	Market               string          `json:"market"`
	CandleDateTimeUTC    string          `json:"candle_date_time_utc"`
	OpeningPrice         decimal.Decimal `json:"opening_price"`
	HighPrice            decimal.Decimal `json:"high_price"`
	LowPrice             decimal.Decimal `json:"low_price"`
	TradePrice           decimal.Decimal `json:"trade_price"`
	CandleAccTradeVolume decimal.Decimal `json:"candle_acc_trade_volume"`
}

type accountInfo struct {
	Currency     string          `json:"currency"`
	Balance      decimal.Decimal `json:"balance"`
	Locked       decimal.Decimal `json:"locked"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	UnitCurrency string          `json:"unit_currency"`
}

type orderInfo struct {
	UUID      string              `json:"uuid"`
	Side      string              `json:"side"`
	OrdType   string              `json:"ord_type"`
	Price     decimal.NullDecimal `json:"price"`
	Volume    decimal.NullDecimal `json:"volume"`
	State     string              `json:"state"`
	Market    string              `json:"market"`
	CreatedAt string              `json:"created_at"`
}

type apiError struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}
