/*
Package qdrant is a thin HTTP client for the Qdrant REST API, implementing
the vector index half of the memory engine. Only the handful of point
operations the engine needs are wrapped; anything fancier should go through
an official client.
*/
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

// Client wraps an endpoint + collection.
type Client struct {
	Endpoint   string // e.g. http://localhost:6333
	Collection string // e.g. "memories"
	httpClient *http.Client
}

// New returns a Client with sane defaults.
func New(endpoint, collection string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Collection: collection,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

/*
EnsureCollection creates the collection with a cosine-distance vector space
of the given dimension if it does not already exist.
*/
func (client *Client) EnsureCollection(ctx context.Context, dimension int) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/collections/%s", client.Endpoint, client.Collection),
		nil,
	)
	if err != nil {
		return err
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	b, _ := json.Marshal(body)

	req, err = http.NewRequestWithContext(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/collections/%s", client.Endpoint, client.Collection),
		bytes.NewReader(b),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: create collection status %s", resp.Status)
	}

	return nil
}

/*
Upsert writes or replaces a single point. Qdrant requires point ids to be
UUIDs or unsigned integers, which is why memory ids are plain UUIDs.
*/
func (client *Client) Upsert(
	ctx context.Context, id string, vector []float32, payload map[string]any,
) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":      id,
			"vector":  vector,
			"payload": payload,
		}},
	}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", client.Endpoint, client.Collection),
		bytes.NewReader(b),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: upsert status %s", resp.Status)
	}

	return nil
}

/*
Query runs a nearest-neighbor search. Qdrant reports cosine similarity as
the score, which is converted here to the normalized distance the engine
expects.
*/
func (client *Client) Query(
	ctx context.Context, vector []float32, n int,
) ([]memory.ScoredID, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        n,
		"with_payload": false,
		"with_vector":  false,
	}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", client.Endpoint, client.Collection),
		bytes.NewReader(b),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant: search status %s", resp.Status)
	}

	var out struct {
		Result []struct {
			ID    string  `json:"id"`
			Score float32 `json:"score"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	hits := make([]memory.ScoredID, 0, len(out.Result))
	for _, r := range out.Result {
		hits = append(hits, memory.ScoredID{ID: r.ID, Distance: 1 - r.Score})
	}

	return hits, nil
}

/*
Get returns the stored vector for a point, or ErrNotFound.
*/
func (client *Client) Get(ctx context.Context, id string) ([]float32, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/collections/%s/points/%s", client.Endpoint, client.Collection, id),
		nil,
	)
	if err != nil {
		return nil, err
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.ErrNotFound.WithMessagef("no vector for %s", id)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant: get status %s", resp.Status)
	}

	var out struct {
		Result struct {
			ID     string    `json:"id"`
			Vector []float32 `json:"vector"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	if len(out.Result.Vector) == 0 {
		return nil, errors.ErrNotFound.WithMessagef("no vector for %s", id)
	}

	return out.Result.Vector, nil
}

/*
Delete removes a point. Deleting a missing point is not an error.
*/
func (client *Client) Delete(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{id}}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", client.Endpoint, client.Collection),
		bytes.NewReader(b),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: delete status %s", resp.Status)
	}

	return nil
}

// scrollPageSize bounds each page of a full-collection id scan.
const scrollPageSize = 1000

/*
ListIDs pages through the whole collection with the scroll API and returns
every point id, for reconciliation scans.
*/
func (client *Client) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var offset any

	for {
		body := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": false,
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}
		b, _ := json.Marshal(body)

		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			fmt.Sprintf("%s/collections/%s/points/scroll", client.Endpoint, client.Collection),
			bytes.NewReader(b),
		)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("qdrant: scroll status %s", resp.Status)
		}

		var out struct {
			Result struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}

		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		for _, point := range out.Result.Points {
			ids = append(ids, point.ID)
		}

		if out.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = out.Result.NextPageOffset
	}
}
