package market

import "context"

type SourceStats struct {
	Requests     int
	Errors       int
	LastError    string
	LastFetchUTC int64
}

type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	Stats() SourceStats

	Close() error
}
