package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListContracts returns the most recent contracts, newest first
func (c *Client) ListContracts(ctx context.Context, limit int) ([]Contract, error) {
	return c.getContracts(ctx, "/api/contracts", url.Values{"limit": {strconv.Itoa(limit)}})
}

// SearchContracts returns contracts whose filename matches q
func (c *Client) SearchContracts(ctx context.Context, q string, limit int) ([]Contract, error) {
	return c.getContracts(ctx, "/api/contracts/search", url.Values{
		"q":     {q},
		"limit": {strconv.Itoa(limit)},
	})
}

// RecentContracts returns the latest contracts
func (c *Client) RecentContracts(ctx context.Context, limit int) ([]Contract, error) {
	return c.getContracts(ctx, "/api/contracts/recent", url.Values{"limit": {strconv.Itoa(limit)}})
}

// GetContract returns one record including its analysis
func (c *Client) GetContract(ctx context.Context, id int64) (*Contract, error) {
	const endpoint = "/api/contracts/get"

	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	data, err := c.do(ctx, http.MethodGet, endpoint, url.Values{"id": {strconv.FormatInt(id, 10)}}, nil, "")
	if err != nil {
		return nil, err
	}

	var contract Contract
	if err := decodeEnvelope(data, endpoint, &contract); err != nil {
		return nil, err
	}
	return &contract, nil
}

// DeleteContract removes one record
func (c *Client) DeleteContract(ctx context.Context, id int64) error {
	const endpoint = "/api/contracts/delete"

	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	data, err := c.do(ctx, http.MethodPost, endpoint, url.Values{"id": {strconv.FormatInt(id, 10)}}, nil, "")
	if err != nil {
		return err
	}
	return decodeEnvelope(data, endpoint, nil)
}

// Stats returns the aggregate counters
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	const endpoint = "/api/contracts/stats"

	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	data, err := c.do(ctx, http.MethodGet, endpoint, nil, nil, "")
	if err != nil {
		return nil, err
	}

	var stats Stats
	if err := decodeEnvelope(data, endpoint, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) getContracts(ctx context.Context, endpoint string, query url.Values) ([]Contract, error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	data, err := c.do(ctx, http.MethodGet, endpoint, query, nil, "")
	if err != nil {
		return nil, err
	}

	var contracts []Contract
	if err := decodeEnvelope(data, endpoint, &contracts); err != nil {
		return nil, err
	}
	if contracts == nil {
		contracts = []Contract{}
	}
	return contracts, nil
}
