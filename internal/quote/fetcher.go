package quote

import (
	"context"
	"log"
	"sync"
	"time"

	"portfoliopulse/internal/model"
)

// Fetcher defines the interface for fetching a single symbol's quote.
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
	Name() string
}

// FetchAll fetches quotes for every symbol concurrently and returns a map
// keyed by symbol. A failed or unusable fetch is logged and the symbol is
// omitted; the next scheduled run is the retry. Symbols are expected to be
// deduplicated and upper-cased by the caller.
func FetchAll(ctx context.Context, f Fetcher, symbols []string) map[string]model.Quote {
	quotes := make(map[string]model.Quote, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			q, err := f.FetchQuote(ctx, sym)
			if err != nil {
				log.Printf("[WARN] fetch quote %s: %v", sym, err)
				return
			}
			q.Symbol = sym
			if q.FetchedAt.IsZero() {
				q.FetchedAt = time.Now()
			}
			mu.Lock()
			quotes[sym] = q
			mu.Unlock()
		}(sym)
	}
	wg.Wait()

	return quotes
}
