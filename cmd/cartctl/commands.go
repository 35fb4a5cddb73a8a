package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/abgdnv/gomarketplace/internal/cart"
	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

// cartView is what every command prints.
type cartView struct {
	Items         []cart.LineItem `json:"items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalPrice    float64         `json:"total_price"`
	Revision      uint64          `json:"revision"`
}

func printCart(w io.Writer, snap cart.Snapshot) error {
	items := snap.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	out, err := json.MarshalIndent(cartView{
		Items:         items,
		TotalQuantity: snap.TotalQuantity(),
		TotalPrice:    snap.TotalPrice(),
		Revision:      snap.Revision,
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := cart.FromContext(cmd.Context())
			if err != nil {
				return err
			}
			return printCart(cmd.OutOrStdout(), store.Items())
		},
	}
}

func newAddCmd() *cobra.Command {
	var product service.ProductDto
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product to the cart, or one more of it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validator.New().Struct(product); err != nil {
				return fmt.Errorf("invalid product: %w", err)
			}
			store, err := cart.FromContext(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := store.Add(cmd.Context(), cart.Product{
				ID:       product.ID,
				Title:    product.Title,
				ImageURL: product.ImageURL,
				Price:    product.Price,
			})
			return printThen(cmd, snap, err)
		},
	}
	cmd.Flags().StringVar(&product.ID, "id", "", "product id")
	cmd.Flags().StringVar(&product.Title, "title", "", "product title")
	cmd.Flags().StringVar(&product.ImageURL, "image-url", "", "product image url")
	cmd.Flags().Float64Var(&product.Price, "price", 0, "unit price")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newIncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inc ID",
		Short: "Increase the quantity of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cart.FromContext(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := store.Increment(cmd.Context(), args[0])
			return printThen(cmd, snap, err)
		},
	}
}

func newDecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dec ID",
		Short: "Decrease the quantity of an item, removing it at zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cart.FromContext(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := store.Decrement(cmd.Context(), args[0])
			return printThen(cmd, snap, err)
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Write the cart to the database again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := cart.FromContext(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := store.Sync(cmd.Context())
			return printThen(cmd, snap, err)
		},
	}
}

// printThen prints the cart even when it was not saved, then reports err.
func printThen(cmd *cobra.Command, snap cart.Snapshot, err error) error {
	if perr := printCart(cmd.OutOrStdout(), snap); perr != nil {
		return perr
	}
	return err
}
