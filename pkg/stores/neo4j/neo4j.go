/*
Package neo4j talks to Neo4j over its HTTP transactional endpoint and
implements the graph half of the memory engine: Memory nodes plus typed,
confidence-weighted relationships between them.
*/
package neo4j

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	Endpoint   string
	Username   string
	Password   string
	httpClient *http.Client
}

func New(endpoint, user, pass string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Username:   user,
		Password:   pass,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// row is one result row from the transactional endpoint, positional by the
// RETURN clause of the statement that produced it.
type row []any

// ExecCypher sends a single Cypher statement with optional parameters and
// returns the result rows. A server-side Cypher error becomes a Go error.
func (client *Client) ExecCypher(
	ctx context.Context, cypher string, params map[string]any,
) ([]row, error) {
	payload := map[string]any{
		"statements": []map[string]any{{
			"statement":  cypher,
			"parameters": params,
		}},
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		client.Endpoint+"/db/neo4j/tx/commit",
		bytes.NewReader(b),
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if client.Username != "" {
		req.SetBasicAuth(client.Username, client.Password)
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("neo4j: status %s", resp.Status)
	}

	var out struct {
		Results []struct {
			Columns []string `json:"columns"`
			Data    []struct {
				Row row `json:"row"`
			} `json:"data"`
		} `json:"results"`
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("neo4j: %s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}

	if len(out.Results) == 0 {
		return nil, nil
	}

	rows := make([]row, 0, len(out.Results[0].Data))
	for _, d := range out.Results[0].Data {
		rows = append(rows, d.Row)
	}

	return rows, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	t, err := time.Parse(time.RFC3339Nano, asString(v))
	if err != nil {
		return time.Time{}
	}
	return t
}

func asMeta(v any) map[string]any {
	raw := asString(v)
	if raw == "" {
		return map[string]any{}
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return map[string]any{}
	}
	return meta
}
