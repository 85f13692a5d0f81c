package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/recall/pkg/errors"
)

func TestClientUpsert(t *testing.T) {
	Convey("Given a qdrant client and a test server", t, func() {
		var captured map[string]any

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&captured)
			fmt.Fprint(w, `{"result":{"status":"completed"},"status":"ok"}`)
		}))
		defer ts.Close()

		client := New(ts.URL, "memories")
		err := client.Upsert(context.Background(), "11111111-1111-1111-1111-111111111111",
			[]float32{0.1, 0.2}, map[string]any{"content": "hello"})

		Convey("Then the point should be sent as a single-element batch", func() {
			So(err, ShouldBeNil)
			points := captured["points"].([]any)
			So(len(points), ShouldEqual, 1)
			point := points[0].(map[string]any)
			So(point["id"], ShouldEqual, "11111111-1111-1111-1111-111111111111")
		})
	})
}

func TestClientQuery(t *testing.T) {
	Convey("Given a qdrant client and a test server for search", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"result":[{"id":"1","score":0.92},{"id":"2","score":0.75}]}`)
		}))
		defer ts.Close()

		client := New(ts.URL, "memories")
		hits, err := client.Query(context.Background(), []float32{0.1}, 2)

		Convey("Then scores should be converted to distances", func() {
			So(err, ShouldBeNil)
			So(len(hits), ShouldEqual, 2)
			So(hits[0].ID, ShouldEqual, "1")
			So(hits[0].Distance, ShouldAlmostEqual, 0.08, 0.0001)
			So(hits[0].Similarity(), ShouldAlmostEqual, 0.92, 0.0001)
			So(hits[1].Distance, ShouldAlmostEqual, 0.25, 0.0001)
		})
	})
}

func TestClientGet(t *testing.T) {
	Convey("Given a qdrant client and a test server", t, func() {
		Convey("When the point exists", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"result":{"id":"123","vector":[0.1,0.2,0.3]}}`)
			}))
			defer ts.Close()

			vector, err := New(ts.URL, "memories").Get(context.Background(), "123")

			So(err, ShouldBeNil)
			So(len(vector), ShouldEqual, 3)
		})

		Convey("When the point is missing", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer ts.Close()

			_, err := New(ts.URL, "memories").Get(context.Background(), "missing")

			So(errors.Is(err, errors.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestClientDelete(t *testing.T) {
	Convey("Given a qdrant client and a test server", t, func() {
		var path string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			fmt.Fprint(w, `{"result":{"status":"completed"},"status":"ok"}`)
		}))
		defer ts.Close()

		err := New(ts.URL, "memories").Delete(context.Background(), "123")

		Convey("Then the delete endpoint should be used", func() {
			So(err, ShouldBeNil)
			So(path, ShouldEqual, "/collections/memories/points/delete")
		})
	})
}

func TestClientListIDs(t *testing.T) {
	Convey("Given a qdrant client and a paging test server", t, func() {
		calls := 0

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				fmt.Fprint(w, `{"result":{"points":[{"id":"a"},{"id":"b"}],"next_page_offset":"b"}}`)
				return
			}
			fmt.Fprint(w, `{"result":{"points":[{"id":"c"}],"next_page_offset":null}}`)
		}))
		defer ts.Close()

		ids, err := New(ts.URL, "memories").ListIDs(context.Background())

		Convey("Then all pages should be followed", func() {
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"a", "b", "c"})
			So(calls, ShouldEqual, 2)
		})
	})
}

func TestEnsureCollection(t *testing.T) {
	Convey("Given a qdrant client and a test server", t, func() {
		Convey("When the collection already exists", func() {
			puts := 0
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPut {
					puts++
				}
				fmt.Fprint(w, `{"result":{},"status":"ok"}`)
			}))
			defer ts.Close()

			err := New(ts.URL, "memories").EnsureCollection(context.Background(), 1536)

			So(err, ShouldBeNil)
			So(puts, ShouldEqual, 0)
		})

		Convey("When the collection is missing", func() {
			var created map[string]any
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				json.NewDecoder(r.Body).Decode(&created)
				fmt.Fprint(w, `{"result":true,"status":"ok"}`)
			}))
			defer ts.Close()

			err := New(ts.URL, "memories").EnsureCollection(context.Background(), 1536)

			So(err, ShouldBeNil)
			vectors := created["vectors"].(map[string]any)
			So(vectors["distance"], ShouldEqual, "Cosine")
			So(vectors["size"], ShouldAlmostEqual, 1536)
		})
	})
}
