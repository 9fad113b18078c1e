package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage/memory"
)

func seedExport(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	ana, err := store.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "hash"})
	require.NoError(t, err)
	bruno, err := store.CreateUser(ctx, shopping.NewUser{Username: "bruno", Password: "hash"})
	require.NoError(t, err)

	desc := "weekly"
	list, err := store.CreateList(ctx, ana.ID, shopping.NewList{Name: "Mercado", Date: shopping.MustParseDate("2024-01-01"), Description: &desc})
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, list.ID, shopping.NewItem{Name: "Arroz", Price: 5.5, Quantity: 2})
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, list.ID, shopping.NewItem{Name: "Leite", Price: 4.25, Quantity: 3})
	require.NoError(t, err)

	_, err = store.CreateList(ctx, ana.ID, shopping.NewList{Name: "Feira", Date: shopping.MustParseDate("2024-01-02")})
	require.NoError(t, err)
	_, err = store.CreateList(ctx, bruno.ID, shopping.NewList{Name: "Outra", Date: shopping.MustParseDate("2024-01-03")})
	require.NoError(t, err)

	return store
}

func TestBuildExport(t *testing.T) {
	store := seedExport(t)

	doc, err := buildExport(context.Background(), store, "ana")
	require.NoError(t, err)

	assert.Equal(t, "ana", doc.Username)
	require.Len(t, doc.Lists, 2)

	mercado := doc.Lists[0]
	assert.Equal(t, "Mercado", mercado.Name)
	assert.Len(t, mercado.Items, 2)
	assert.InDelta(t, 23.75, mercado.Total, 1e-9)
	assert.InDelta(t, 11.0, mercado.Items[0].Subtotal, 1e-9)

	feira := doc.Lists[1]
	assert.NotNil(t, feira.Items)
	assert.Empty(t, feira.Items)
	assert.Zero(t, feira.Total)

	_, err = buildExport(context.Background(), store, "carla")
	assert.ErrorContains(t, err, `no user named "carla"`)
}

func TestWriteExport(t *testing.T) {
	store := seedExport(t)
	doc, err := buildExport(context.Background(), store, "ana")
	require.NoError(t, err)

	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeExport(&buf, doc, "yaml"))

		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "username: ana\n"), "unexpected output:\n%s", out)
		assert.Contains(t, out, "date: \"2024-01-01\"")

		var back map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
		assert.Len(t, back["lists"], 2)
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeExport(&buf, doc, "json"))

		var back struct {
			Lists []struct {
				Date  string  `json:"date"`
				Total float64 `json:"total"`
			} `json:"lists"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
		require.Len(t, back.Lists, 2)
		assert.Equal(t, "2024-01-01", back.Lists[0].Date)
		assert.InDelta(t, 23.75, back.Lists[0].Total, 1e-9)
	})
}
