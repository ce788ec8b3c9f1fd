package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/t77yq/benchconsole/internal/model"
)

// NetworkSuggestions fetches the quick suggestion for a cluster
func (c *Client) NetworkSuggestions(ctx context.Context, cluster, storageType string) (*model.SuggestionResponse, error) {
	var q url.Values
	if storageType != "" {
		q = url.Values{"storage_type": {storageType}}
	}
	var out model.SuggestionResponse
	if err := c.do(ctx, http.MethodGet, "/network/suggestions/"+pathEscape(cluster), q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get network suggestions for %s: %w", cluster, err)
	}
	return &out, nil
}

// NetworkProfile runs a full profile with durationSeconds of traffic per client
func (c *Client) NetworkProfile(ctx context.Context, cluster string, durationSeconds int) (*model.NetworkProfile, error) {
	var q url.Values
	if durationSeconds > 0 {
		q = url.Values{"duration": {strconv.Itoa(durationSeconds)}}
	}
	var out model.NetworkProfile
	if err := c.do(ctx, http.MethodGet, "/network/profile/"+pathEscape(cluster), q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to profile network of %s: %w", cluster, err)
	}
	return &out, nil
}
