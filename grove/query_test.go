package grove

import (
	"testing"

	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/query"
)

func insertItems(t *testing.T, g *Grove, path [][]byte, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		if _, err := g.Insert(path, []byte(k), element.NewItem([]byte(v), nil)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestQueryRange(t *testing.T) {
	g := newTestGrove(t)
	insertItems(t, g, nil, map[string]string{"a": "1", "b": "2", "c": "3"})

	q := query.New()
	q.Items = []query.Item{query.Range([]byte("a"), []byte("c"))}
	results, _, err := g.Query(&query.PathQuery{Query: query.SizedQuery{Query: q}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results for [a,c), got %d", len(results))
	}
}

func TestQueryItemValueExactlyOne(t *testing.T) {
	g := newTestGrove(t)
	insertItems(t, g, nil, map[string]string{"a": "1"})

	q := query.New()
	q.Items = []query.Item{query.Key([]byte("a"))}
	el, _, err := g.QueryItemValue(&query.PathQuery{Query: query.SizedQuery{Query: q}})
	if err != nil {
		t.Fatal(err)
	}
	if string(el.Bytes) != "1" {
		t.Fatalf("expected item 1, got %+v", el)
	}
}

func TestQueryItemValueRejectsMultipleMatches(t *testing.T) {
	g := newTestGrove(t)
	insertItems(t, g, nil, map[string]string{"a": "1", "b": "2"})

	q := query.New()
	q.Items = []query.Item{query.RangeFull()}
	_, _, err := g.QueryItemValue(&query.PathQuery{Query: query.SizedQuery{Query: q}})
	if !groveerr.Is(err, groveerr.InvalidPath) {
		t.Fatalf("expected InvalidPath for more than one match, got %v", err)
	}
}

func TestQueryItemValueRejectsNoMatch(t *testing.T) {
	g := newTestGrove(t)

	q := query.New()
	q.Items = []query.Item{query.Key([]byte("missing"))}
	_, _, err := g.QueryItemValue(&query.PathQuery{Query: query.SizedQuery{Query: q}})
	if !groveerr.Is(err, groveerr.InvalidPath) {
		t.Fatalf("expected InvalidPath for zero matches, got %v", err)
	}
}

func TestQueryMany(t *testing.T) {
	g := newTestGrove(t)
	insertItems(t, g, nil, map[string]string{"a": "1", "b": "2"})

	q1 := query.New()
	q1.Items = []query.Item{query.Key([]byte("a"))}
	q2 := query.New()
	q2.Items = []query.Item{query.Key([]byte("b"))}

	results, _, err := g.QueryMany([]*query.PathQuery{
		{Query: query.SizedQuery{Query: q1}},
		{Query: query.SizedQuery{Query: q2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected the merged query to cover both keys, got %d", len(results))
	}
}
