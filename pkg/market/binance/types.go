package market

// Kline represents a single candlestick as delivered by Binance REST or stream endpoints.
type Kline struct {
	Symbol      string  // trading pair symbol (stream only)
	Interval    string  // stream only
	OpenTime    int64   // 0: Open time (ms)
	Open        float64 // 1: Open price
	High        float64 // 2: High price
	Low         float64 // 3: Low price
	Close       float64 // 4: Close price
	Volume      float64 // 5: Base asset volume
	CloseTime   int64   // 6: Close time (ms)
	QuoteVolume float64 // 7: Quote asset volume
	Trades      int     // 8: Number of trades
	IsClosed    bool    // stream "x" flag; REST klines before the current one are closed
}

// Ticker holds the last traded price.
type Ticker struct {
	Symbol string
	Price  float64
}
