package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pipelinewatch/internal/config"
	"pipelinewatch/internal/models"
)

func TestItemResolver_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/item/src-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"result":{"id":"src-1","zone":1,"type":"folder","parent":"x"}}`))
	}))
	defer srv.Close()

	res, err := NewItemResolver(srv.URL, srv.Client()).Resolve(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Zone != models.ZoneCore || res.Type != models.ItemTypeFolder {
		t.Fatalf("unexpected resource %+v", res)
	}
}

func TestItemResolver_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewItemResolver(srv.URL, srv.Client()).Resolve(context.Background(), "missing")
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestItemResolver_EmptyOrIncompleteItem(t *testing.T) {
	cases := map[string]struct {
		body string
		want error
	}{
		"null result":  {`{"result":null}`, ErrResourceNotFound},
		"no result":    {`{}`, ErrResourceNotFound},
		"empty id":     {`{"result":{"zone":0,"type":"file"}}`, ErrResourceNotFound},
		"missing zone": {`{"result":{"id":"src-1","type":"file"}}`, ErrInvalidItem},
		"unknown zone": {`{"result":{"id":"src-1","zone":7,"type":"file"}}`, ErrInvalidItem},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			res, err := NewItemResolver(srv.URL, srv.Client()).Resolve(context.Background(), "src-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("Resolve = (%+v, %v), want %v", res, err, tc.want)
			}
		})
	}
}

func TestItemResolver_GreenroomZoneIsExplicit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"id":"src-1","zone":0,"type":"file"}}`))
	}))
	defer srv.Close()

	res, err := NewItemResolver(srv.URL, srv.Client()).Resolve(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ID != "src-1" || res.Zone != models.ZoneGreenroom {
		t.Fatalf("unexpected resource %+v", res)
	}
}

// graphServer answers node queries from a label -> result table and records
// the labels queried, in order.
func graphServer(t *testing.T, results map[string]string, seen *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/nodes/query" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var q graphQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decode query: %v", err)
			return
		}
		if q.PageSize != 1 || q.Page != 0 || q.Partial || q.OrderType != "desc" || q.OrderBy != "global_entity_id" {
			t.Errorf("unexpected query envelope %+v", q)
		}
		if len(q.Query.Labels) != 1 {
			t.Errorf("labels = %v, want exactly one", q.Query.Labels)
			return
		}
		label := q.Query.Labels[0]
		*seen = append(*seen, label)
		body, ok := results[label]
		if !ok {
			body = `{"result":[]}`
		}
		_, _ = w.Write([]byte(body))
	}))
}

func TestGraphResolver_FolderOnly(t *testing.T) {
	var seen []string
	srv := graphServer(t, map[string]string{
		models.LabelFolder: `{"result":[{"id":7,"labels":["Folder","Greenroom"]}]}`,
	}, &seen)
	defer srv.Close()

	res, err := NewGraphResolver(srv.URL, srv.Client()).Resolve(context.Background(), "geid-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Type != models.ItemTypeFolder || !res.HasLabel("greenroom") {
		t.Fatalf("unexpected resource %+v", res)
	}
	if res.ID != "7" {
		t.Fatalf("ID = %q, want 7", res.ID)
	}
	want := []string{models.LabelFile, models.LabelFolder}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("queried labels = %v, want %v", seen, want)
	}
}

func TestGraphResolver_PrefersFile(t *testing.T) {
	var seen []string
	srv := graphServer(t, map[string]string{
		models.LabelFile:   `{"result":[{"id":"f","labels":["File","Core"]}]}`,
		models.LabelFolder: `{"result":[{"id":"d","labels":["Folder"]}]}`,
	}, &seen)
	defer srv.Close()

	res, err := NewGraphResolver(srv.URL, srv.Client()).Resolve(context.Background(), "dup")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Type != models.ItemTypeFile || len(seen) != 1 {
		t.Fatalf("expected single File match, got %+v after %v", res, seen)
	}
}

func TestGraphResolver_NoneMatch(t *testing.T) {
	var seen []string
	srv := graphServer(t, map[string]string{}, &seen)
	defer srv.Close()

	_, err := NewGraphResolver(srv.URL, srv.Client()).Resolve(context.Background(), "ghost")
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
	if len(seen) != 3 || seen[2] != models.LabelContainer {
		t.Fatalf("queried labels = %v, want File, Folder, Container", seen)
	}
}

func TestGraphResolver_NonOKFallsThrough(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"c","labels":["Folder"]}]}`))
	}))
	defer srv.Close()

	res, err := NewGraphResolver(srv.URL, srv.Client()).Resolve(context.Background(), "x")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ID != "c" || calls != 2 {
		t.Fatalf("got %+v after %d calls", res, calls)
	}
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory(config.Config{ResolverMode: config.ResolverGraph, GraphService: "http://graph"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := f(http.DefaultClient).(*GraphResolver); !ok {
		t.Fatalf("graph mode should build a GraphResolver")
	}

	f, err = NewFactory(config.Config{ResolverMode: config.ResolverItem, MetadataService: "http://meta"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := f(http.DefaultClient).(*ItemResolver); !ok {
		t.Fatalf("item mode should build an ItemResolver")
	}

	f, err = NewFactory(config.Config{ResolverMode: "Graph", GraphService: "http://graph"})
	if err != nil {
		t.Fatalf("mixed-case mode: %v", err)
	}
	if _, ok := f(http.DefaultClient).(*GraphResolver); !ok {
		t.Fatalf("mixed-case graph mode should build a GraphResolver")
	}
	if _, err := NewFactory(config.Config{ResolverMode: "both"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
