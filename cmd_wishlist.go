package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"carsucart/client/remote"
	"carsucart/client/wishlist"
	"carsucart/logging"
	"carsucart/models"
	"carsucart/rdx"

	"github.com/spf13/cobra"
)

var (
	wishlistFile  string
	wishlistRedis string
	wishlistUser  string
	wishlistURL   string
)

var wishlistCmd = &cobra.Command{
	Use:   "wishlist",
	Short: "Manage the local wishlist",
	Long: `Favorites live on the device: in a JSON file by default, or in
Redis under wishlist:<user> when --redis is given.`,
}

var wishlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print wishlisted products",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withWishlist(cmd, func(ctx context.Context, w *wishlist.Store) error {
			out := cmd.OutOrStdout()
			for _, it := range w.Items() {
				fmt.Fprintf(out, "%d\t%s\t%.2f\n", it.ID, it.Name, it.Price)
			}
			fmt.Fprintf(out, "%d item(s)\n", w.Count())
			return nil
		})
	},
}

var wishlistToggleCmd = &cobra.Command{
	Use:   "toggle <product-id>",
	Short: "Add a product to the wishlist, or remove it if already there",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		return withWishlist(cmd, func(ctx context.Context, w *wishlist.Store) error {
			item := models.WishlistItem{ID: id}
			if !w.Contains(id) {
				if item, err = lookupProduct(ctx, id); err != nil {
					return err
				}
			}
			added, err := w.Toggle(ctx, item)
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "added %d to wishlist\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d from wishlist\n", id)
			}
			return nil
		})
	},
}

func init() {
	home, _ := os.UserHomeDir()
	pf := wishlistCmd.PersistentFlags()
	pf.StringVar(&wishlistFile, "file", filepath.Join(home, ".carsucart", "wishlist.json"), "wishlist file")
	pf.StringVar(&wishlistRedis, "redis", "", "store the wishlist in Redis at this address instead of a file")
	pf.StringVar(&wishlistUser, "user", "me", "wishlist owner when using Redis")
	pf.StringVar(&wishlistURL, "url", "http://localhost:8080", "API base URL used to look up products")

	wishlistCmd.AddCommand(wishlistListCmd)
	wishlistCmd.AddCommand(wishlistToggleCmd)
}

func withWishlist(cmd *cobra.Command, fn func(context.Context, *wishlist.Store) error) error {
	ctx := cmd.Context()
	log, err := logging.New("dev", "warn")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var repo wishlist.Repository = wishlist.NewFileRepository(wishlistFile)
	if wishlistRedis != "" {
		conn, err := rdx.Connect(ctx, wishlistRedis, os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			return err
		}
		defer conn.Close()
		repo = wishlist.NewRedisRepository(conn, wishlistUser)
	}

	w, err := wishlist.Open(ctx, repo, log)
	if err != nil {
		return err
	}
	return fn(ctx, w)
}

// lookupProduct snapshots the catalog entry so the wishlist renders offline.
func lookupProduct(ctx context.Context, id int64) (models.WishlistItem, error) {
	api, err := remote.New(remote.Config{BaseURL: wishlistURL})
	if err != nil {
		return models.WishlistItem{}, err
	}
	p, err := api.Product(ctx, id)
	if err != nil {
		return models.WishlistItem{}, fmt.Errorf("look up product %d: %w", id, err)
	}
	return models.WishlistItem{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Image,
		Category: p.Category,
		Rating:   p.Rating,
		Reviews:  p.Reviews,
	}, nil
}
