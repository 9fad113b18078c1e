package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

type exportItem struct {
	ID       int64   `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Price    float64 `json:"price" yaml:"price"`
	Quantity int     `json:"quantity" yaml:"quantity"`
	Subtotal float64 `json:"subtotal" yaml:"subtotal"`
}

type exportList struct {
	ID          int64         `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Date        shopping.Date `json:"date" yaml:"date"`
	Description *string       `json:"description,omitempty" yaml:"description,omitempty"`
	Items       []exportItem  `json:"items" yaml:"items"`
	Total       float64       `json:"total" yaml:"total"`
}

type exportDoc struct {
	Username   string       `json:"username" yaml:"username"`
	ExportedAt time.Time    `json:"exportedAt" yaml:"exportedAt"`
	Lists      []exportList `json:"lists" yaml:"lists"`
}

func newExportCommand(a *app) *cobra.Command {
	var username, format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print every list and item of one user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unknown format %q (want yaml or json)", format)
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := buildExport(cmd.Context(), store, username)
			if err != nil {
				return err
			}
			return writeExport(cmd.OutOrStdout(), doc, format)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account to export")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func buildExport(ctx context.Context, store storage.Storage, username string) (*exportDoc, error) {
	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("no user named %q", username)
	}

	lists, err := store.GetLists(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	doc := &exportDoc{
		Username:   user.Username,
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Lists:      make([]exportList, 0, len(lists)),
	}
	for _, l := range lists {
		items, err := store.GetItems(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("list %d: %w", l.ID, err)
		}
		el := exportList{
			ID:          l.ID,
			Name:        l.Name,
			Date:        l.Date,
			Description: l.Description,
			Items:       make([]exportItem, 0, len(items)),
			Total:       shopping.Total(items),
		}
		for _, it := range items {
			el.Items = append(el.Items, exportItem{
				ID:       it.ID,
				Name:     it.Name,
				Price:    it.Price,
				Quantity: it.Quantity,
				Subtotal: it.Subtotal(),
			})
		}
		doc.Lists = append(doc.Lists, el)
	}
	return doc, nil
}

func writeExport(w io.Writer, doc *exportDoc, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
