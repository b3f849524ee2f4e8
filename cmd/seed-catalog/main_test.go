package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGzip(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestDecodeCatalog(t *testing.T) {
	items, err := decodeCatalog(strings.NewReader(`[
		{"name": " Cabin ", "price": "45000.50", "category": "Cabins"},
		{"name": "Studio", "price": 8000, "stock_quantity": 3}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Cabin", items[0].Name)
	assert.Equal(t, "45000.5", items[0].Price.String())
	assert.Equal(t, defaultStock, items[0].StockQuantity)
	assert.Equal(t, 3, items[1].StockQuantity)
}

func TestDecodeCatalog_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"NotJSON":       `{`,
		"NoName":        `[{"price": 1}]`,
		"NegativePrice": `[{"name": "x", "price": -1}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeCatalog(strings.NewReader(data))
			assert.Error(t, err)
		})
	}
}

func TestReadCatalogs_MergesFiles(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(plain, []byte(`[{"name": "Cabin", "price": 1}, {"name": "Studio", "price": 2}]`), 0o600))
	packed := filepath.Join(dir, "b.json.gz")
	writeGzip(t, packed, `[{"name": "cabin", "price": 3}, {"name": "Loft", "price": 4}]`)

	items, err := readCatalogs(context.Background(), []string{plain, " " + packed})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "cabin", items[0].Name)
	assert.Equal(t, "3", items[0].Price.String())
	assert.Equal(t, "Studio", items[1].Name)
	assert.Equal(t, "Loft", items[2].Name)
}

func TestReadCatalogs_MissingFile(t *testing.T) {
	_, err := readCatalogs(context.Background(), []string{filepath.Join(t.TempDir(), "nope.json")})
	assert.ErrorContains(t, err, "nope.json")
}
