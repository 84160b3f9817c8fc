package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tableside/internal/domain/menu"
)

func writeFeed(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func item(id, price string) string {
	return `{"id":"` + id + `","name":"` + id + `","price":"` + price + `","category":"Mains","available":true}`
}

func ids(items []menu.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestReadFeed(t *testing.T) {
	path := writeFeed(t, "a.jsonl.gz",
		item("burger", "10.00"),
		"",
		`{"id":"pizza","name":"Pizza","price":"12.50","optionGroups":[{"name":"Crust","options":[{"name":"Thin","price":"0"}]}]}`,
	)

	items, err := readFeed(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "burger", items[0].ID)
	assert.Equal(t, "12.5", items[1].Price.String())
	require.Len(t, items[1].OptionGroups, 1)
}

func TestReadFeed_Errors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name:  "malformed json",
			lines: []string{item("burger", "10"), `{"id":`},
			want:  ":2: decode item",
		},
		{
			name:  "negative price",
			lines: []string{item("burger", "-1")},
			want:  "negative base price",
		},
		{
			name:  "missing id",
			lines: []string{`{"name":"Nameless","price":"1"}`},
			want:  "id is required",
		},
		{
			name:  "duplicate in file",
			lines: []string{item("burger", "10"), item("fries", "4"), item("burger", "11")},
			want:  "item burger already defined on line 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFeed(t, "feed.jsonl.gz", tt.lines...)
			_, err := readFeed(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadFeed_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jsonl.gz")
	require.NoError(t, os.WriteFile(path, []byte(item("burger", "10")), 0o600))

	_, err := readFeed(context.Background(), path)
	require.Error(t, err)
}

func TestPrepare(t *testing.T) {
	a := writeFeed(t, "a.jsonl.gz", item("burger", "10"), item("fries", "4"))
	b := writeFeed(t, "b.jsonl.gz", item("soup", "6"), item("burger", "11"))
	c := writeFeed(t, "c.jsonl.gz", item("salad", "7"))

	t.Run("disjoint", func(t *testing.T) {
		items, err := prepare(context.Background(), []string{a, c}, options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"burger", "fries", "salad"}, ids(items))
	})

	t.Run("shared ids rejected", func(t *testing.T) {
		_, err := prepare(context.Background(), []string{a, b, c}, options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 item ids appear in more than one file: burger")
	})

	t.Run("later file overrides", func(t *testing.T) {
		items, err := prepare(context.Background(), []string{a, b, c}, options{allowOverrides: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"burger", "fries", "soup", "salad"}, ids(items))
		assert.Equal(t, "11", items[0].Price.String())
	})
}

func TestFindSharedIDs(t *testing.T) {
	ctx := context.Background()
	a := writeFeed(t, "a.jsonl.gz", item("x", "1"), item("y", "1"), item("z", "1"))
	b := writeFeed(t, "b.jsonl.gz", item("y", "1"), item("w", "1"))
	c := writeFeed(t, "c.jsonl.gz", item("z", "1"), item("y", "1"))

	feeds, err := loadFeeds(ctx, []string{a, b, c})
	require.NoError(t, err)

	shared, err := findSharedIDs(ctx, feeds)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, shared)
}

type fakeUpserter struct {
	mu    sync.Mutex
	items map[string]menu.Item
	fail  string
}

func (f *fakeUpserter) Upsert(_ context.Context, it *menu.Item) error {
	if it.ID == f.fail {
		return errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[it.ID] = *it
	return nil
}

func TestWriteItems(t *testing.T) {
	items := []menu.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	repo := &fakeUpserter{items: make(map[string]menu.Item)}
	require.NoError(t, writeItems(context.Background(), repo, items, 2))
	assert.Len(t, repo.items, 4)

	failing := &fakeUpserter{items: make(map[string]menu.Item), fail: "c"}
	err := writeItems(context.Background(), failing, items, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert menu item c")
}
