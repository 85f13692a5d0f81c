package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

func txResponse(columns []string, rows ...[]any) string {
	type data struct {
		Row []any `json:"row"`
	}
	payload := map[string]any{
		"results": []map[string]any{{
			"columns": columns,
			"data": func() []data {
				out := make([]data, 0, len(rows))
				for _, r := range rows {
					out = append(out, data{Row: r})
				}
				return out
			}(),
		}},
		"errors": []any{},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func memoryRow(id, content string) []any {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return []any{id, content, `{"topic":"test"}`, now, now, 1, true, "text", ""}
}

func TestExecCypher(t *testing.T) {
	Convey("Given a neo4j client and a test server", t, func() {
		Convey("When the statement succeeds", func() {
			var captured map[string]any

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&captured)
				fmt.Fprint(w, txResponse([]string{"n"}, []any{"one"}, []any{"two"}))
			}))
			defer ts.Close()

			rows, err := New(ts.URL, "neo4j", "secret").ExecCypher(
				context.Background(), "RETURN $x", map[string]any{"x": 1})

			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0][0], ShouldEqual, "one")

			statements := captured["statements"].([]any)
			So(len(statements), ShouldEqual, 1)
		})

		Convey("When the server reports a Cypher error", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"results":[],"errors":[{"code":"Neo.ClientError.Statement.SyntaxError","message":"bad"}]}`)
			}))
			defer ts.Close()

			_, err := New(ts.URL, "", "").ExecCypher(context.Background(), "BROKEN", nil)

			So(err, ShouldNotBeNil)
		})
	})
}

func TestGetNode(t *testing.T) {
	Convey("Given a neo4j client and a test server", t, func() {
		Convey("When the node exists", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, txResponse(nil, memoryRow("mem-1", "hello")))
			}))
			defer ts.Close()

			node, err := New(ts.URL, "", "").GetNode(context.Background(), "mem-1")

			So(err, ShouldBeNil)
			So(node.ID, ShouldEqual, "mem-1")
			So(node.Content, ShouldEqual, "hello")
			So(node.Version, ShouldEqual, 1)
			So(node.IsLatest, ShouldBeTrue)
			So(node.Metadata["topic"], ShouldEqual, "test")
		})

		Convey("When the node is missing", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, txResponse(nil))
			}))
			defer ts.Close()

			_, err := New(ts.URL, "", "").GetNode(context.Background(), "ghost")

			So(errors.Is(err, errors.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestCreateEdge(t *testing.T) {
	Convey("Given a neo4j client and a test server", t, func() {
		Convey("When the type is valid", func() {
			var captured map[string]any

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&captured)
				fmt.Fprint(w, txResponse([]string{"r.id"}, []any{"rel-1"}))
			}))
			defer ts.Close()

			err := New(ts.URL, "", "").CreateEdge(context.Background(), &memory.Relationship{
				ID:         "rel-1",
				SourceID:   "a",
				TargetID:   "b",
				Type:       memory.RelationshipExtend,
				Confidence: 0.8,
				CreatedAt:  time.Now(),
			})

			So(err, ShouldBeNil)

			statements := captured["statements"].([]any)
			statement := statements[0].(map[string]any)["statement"].(string)
			So(statement, ShouldContainSubstring, "[r:EXTEND")
		})

		Convey("When the type is outside the closed set", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("an invalid type must never reach the server")
			}))
			defer ts.Close()

			err := New(ts.URL, "", "").CreateEdge(context.Background(), &memory.Relationship{
				Type: memory.RelationshipType("DROP ALL"),
			})

			So(errors.Is(err, errors.ErrInvalidRelationshipType), ShouldBeTrue)
		})

		Convey("When an endpoint is missing", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, txResponse(nil))
			}))
			defer ts.Close()

			err := New(ts.URL, "", "").CreateEdge(context.Background(), &memory.Relationship{
				ID:       "rel-2",
				SourceID: "a",
				TargetID: "ghost",
				Type:     memory.RelationshipDerive,
			})

			So(errors.Is(err, errors.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestOutEdges(t *testing.T) {
	Convey("Given a neo4j client and a test server", t, func() {
		now := time.Now().UTC().Format(time.RFC3339Nano)

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, txResponse(nil,
				[]any{"rel-1", "a", "b", "UPDATE", 1.0, "{}", now}))
		}))
		defer ts.Close()

		edges, err := New(ts.URL, "", "").OutEdges(
			context.Background(), "a",
			[]memory.RelationshipType{memory.RelationshipUpdate}, 0.5)

		Convey("Then edges should be parsed with their attributes", func() {
			So(err, ShouldBeNil)
			So(len(edges), ShouldEqual, 1)
			So(edges[0].Type, ShouldEqual, memory.RelationshipUpdate)
			So(edges[0].SourceID, ShouldEqual, "a")
			So(edges[0].TargetID, ShouldEqual, "b")
			So(edges[0].Confidence, ShouldEqual, 1.0)
		})
	})
}

func TestDeleteNodeCascade(t *testing.T) {
	Convey("Given a neo4j client and a test server", t, func() {
		Convey("When the node exists", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, txResponse([]string{"1"}, []any{1}))
			}))
			defer ts.Close()

			found, err := New(ts.URL, "", "").DeleteNodeCascade(context.Background(), "mem-1")

			So(err, ShouldBeNil)
			So(found, ShouldBeTrue)
		})

		Convey("When the node is missing", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, txResponse(nil))
			}))
			defer ts.Close()

			found, err := New(ts.URL, "", "").DeleteNodeCascade(context.Background(), "ghost")

			So(err, ShouldBeNil)
			So(found, ShouldBeFalse)
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given a neo4j client and a test server", t, func() {
		calls := 0

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				fmt.Fprint(w, txResponse(nil, []any{10, 7}))
				return
			}
			fmt.Fprint(w, txResponse(nil, []any{"UPDATE", 3}, []any{"DERIVE", 2}))
		}))
		defer ts.Close()

		stats, err := New(ts.URL, "", "").Stats(context.Background())

		Convey("Then counts should be aggregated", func() {
			So(err, ShouldBeNil)
			So(stats.TotalMemories, ShouldEqual, 10)
			So(stats.LatestMemories, ShouldEqual, 7)
			So(stats.Relationships[memory.RelationshipUpdate], ShouldEqual, 3)
			So(stats.Relationships[memory.RelationshipDerive], ShouldEqual, 2)
		})
	})
}
