// Command seed fills a MongoDB database with demo accounts and products.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/auth"
	"shopnest-backend/internal/config"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
	"shopnest-backend/internal/store/mongostore"
)

type demoProduct struct {
	name     string
	category string
	price    float64
	stock    int
}

var catalogue = []demoProduct{
	{"Wireless Earbuds", "Electronics", 2499, 40},
	{"Mechanical Keyboard", "Electronics", 5999, 15},
	{"Cotton Kurta", "Clothing", 899, 60},
	{"Running Shoes", "Footwear", 3499, 25},
	{"Steel Water Bottle", "Home", 549, 120},
	{"Ceramic Mug Set", "Home", 1199, 30},
	{"Yoga Mat", "Sports", 999, 45},
	{"Paperback Notebook", "Stationery", 149, 300},
	{"Desk Lamp", "Home", 1599, 20},
	{"Backpack", "Accessories", 1899, 35},
}

func main() {
	password := flag.String("password", "password123", "password for the demo accounts")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := mongostore.Open(ctx, mongostore.Options{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close(context.Background())

	seller, err := ensureUser(ctx, st.Users(), "demo-seller", "seller@shopnest.dev", models.RoleSeller, *password)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := ensureUser(ctx, st.Users(), "demo-buyer", "buyer@shopnest.dev", models.RoleBuyer, *password); err != nil {
		log.Fatal(err)
	}

	existing, err := st.Products().ListByOwner(ctx, seller.ID)
	if err != nil {
		log.Fatal(err)
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p.Name] = true
	}
	for _, d := range catalogue {
		if have[d.name] {
			continue
		}
		p := &models.Product{
			Name:        d.name,
			Description: "Demo " + d.name,
			Price:       d.price,
			Category:    d.category,
			Stock:       d.stock,
			Images:      []models.Image{},
			Owner:       seller.ID,
			Reviews:     []models.Review{},
			CreatedAt:   time.Now().UTC(),
		}
		if err := st.Products().Create(ctx, p); err != nil {
			log.Fatal(err)
		}
	}

	if err := printProducts(ctx, st.Products(), seller); err != nil {
		log.Fatal(err)
	}
}

func ensureUser(ctx context.Context, us store.Users, name, email, role, password string) (*models.User, error) {
	u, err := us.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u = &models.User{
		Username:  name,
		Email:     email,
		Password:  hash,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := us.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create %s: %w", email, err)
	}
	return u, nil
}

func printProducts(ctx context.Context, ps store.Products, owner *models.User) error {
	list, err := ps.ListByOwner(ctx, owner.ID)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Category", "Price", "Stock")
	for _, p := range list {
		row := []string{
			p.ID.Hex(),
			p.Name,
			p.Category,
			strconv.FormatFloat(p.Price, 'f', 2, 64),
			strconv.Itoa(p.Stock),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
