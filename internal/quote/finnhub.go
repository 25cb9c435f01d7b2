package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"portfoliopulse/internal/model"
)

// FinnhubFetcher implements Fetcher using the Finnhub quote endpoint.
type FinnhubFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewFinnhubFetcher creates a new fetcher with optional proxy support.
func NewFinnhubFetcher(baseURL, apiKey, proxyURL string) *FinnhubFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &FinnhubFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *FinnhubFetcher) Name() string { return "finnhub" }

// finnhubQuote is the expected JSON shape from the quote endpoint. Pointers
// distinguish a missing field from a legitimate zero.
type finnhubQuote struct {
	Current       *float64 `json:"c"`
	Change        *float64 `json:"d"`
	PercentChange *float64 `json:"dp"`
}

// FetchQuote retrieves the current price snapshot for one symbol. A missing
// or non-numeric current price is an error; the caller drops the symbol.
func (f *FinnhubFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s", f.BaseURL, url.QueryEscape(symbol), f.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Quote{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("fetch quote: status %d", resp.StatusCode)
	}

	var fq finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&fq); err != nil {
		return model.Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	if fq.Current == nil || math.IsNaN(*fq.Current) || math.IsInf(*fq.Current, 0) {
		return model.Quote{}, fmt.Errorf("quote for %s has no usable current price", symbol)
	}

	q := model.Quote{
		Symbol:    symbol,
		Price:     *fq.Current,
		FetchedAt: time.Now(),
	}
	if fq.Change != nil {
		q.Change = *fq.Change
	}
	if fq.PercentChange != nil {
		q.PercentChange = *fq.PercentChange
	}
	return q, nil
}
