package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedCatalog(db)
	seedAddons(db)
	seedLoyalty(db)
	seedCoupons(db)

	log.Println("Seeding completed successfully!")
}

func seedCatalog(db *sql.DB) {
	products := []struct {
		ID             string
		Name           string
		Price          string
		PricingMode    string
		PricePerUnit   string
		BaseWeightUnit string
		IsGroup        bool
		HasVariants    bool
	}{
		{"kaos-hitam", "Kaos Hitam Polos", "100000", "unit", "0", "", false, false},
		{"kopi-arabika", "Kopi Arabika Gayo", "0", "weight", "240000", "kg", false, false},
		{"gula-aren", "Gula Aren Cair", "0", "weight", "85", "grams", false, false},
		{"teh-melati", "Teh Melati", "35000", "unit", "0", "", false, true},
		{"hampers-lebaran", "Hampers Lebaran", "0", "unit", "0", "", true, true},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (id, name, price, pricing_mode, price_per_unit, base_weight_unit, is_group, has_variants)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				pricing_mode = EXCLUDED.pricing_mode,
				price_per_unit = EXCLUDED.price_per_unit,
				base_weight_unit = EXCLUDED.base_weight_unit,
				is_group = EXCLUDED.is_group,
				has_variants = EXCLUDED.has_variants;
		`, p.ID, p.Name, p.Price, p.PricingMode, p.PricePerUnit, p.BaseWeightUnit, p.IsGroup, p.HasVariants)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.ID, err)
		}
	}

	variants := []struct {
		ID         string
		ProductID  string
		Name       string
		Price      string
		Attributes string
	}{
		{"teh-melati-50", "teh-melati", "Teh Melati 50g", "35000", `{"size":"50g"}`},
		{"teh-melati-100", "teh-melati", "Teh Melati 100g", "62000", `{"size":"100g"}`},
		{"hampers-kecil", "hampers-lebaran", "Hampers Kecil", "250000", `{"size":"S"}`},
		{"hampers-besar", "hampers-lebaran", "Hampers Besar", "550000", `{"size":"L"}`},
	}

	fmt.Println("Seeding Variants...")
	for _, v := range variants {
		_, err := db.Exec(`
			INSERT INTO product_variants (id, product_id, name, price, attributes)
			VALUES ($1, $2, $3, $4, $5::jsonb)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				attributes = EXCLUDED.attributes;
		`, v.ID, v.ProductID, v.Name, v.Price, v.Attributes)
		if err != nil {
			log.Printf("Failed to seed variant %s: %v", v.ID, err)
		}
	}
}

func seedAddons(db *sql.DB) {
	addons := []struct {
		ID    string
		Title string
		Price string
	}{
		{"gift-wrap", "Gift Wrap", "15000"},
		{"greeting-card", "Greeting Card", "5000"},
		{"extra-ice", "Extra Ice Pack", "7500"},
	}

	fmt.Println("Seeding Addons...")
	for _, a := range addons {
		_, err := db.Exec(`
			INSERT INTO addons (id, title, price)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, price = EXCLUDED.price;
		`, a.ID, a.Title, a.Price)
		if err != nil {
			log.Printf("Failed to seed addon %s: %v", a.ID, err)
		}
	}
}

func seedLoyalty(db *sql.DB) {
	fmt.Println("Seeding Loyalty...")
	_, err := db.Exec(`
		INSERT INTO loyalty_settings (id, enabled, redemption_value, max_redemption_percent, min_redeem_points, earn_rate)
		VALUES (1, true, 1, 50, 100, 0.01)
		ON CONFLICT (id) DO NOTHING;
	`)
	if err != nil {
		log.Printf("Failed to seed loyalty settings: %v", err)
	}

	accounts := []struct {
		CustomerID string
		Points     int64
	}{
		{"cust-budi", 25000},
		{"cust-siti", 500},
		{"cust-andi", 0},
	}
	for _, a := range accounts {
		_, err := db.Exec(`
			INSERT INTO loyalty_accounts (customer_id, points)
			VALUES ($1, $2)
			ON CONFLICT (customer_id) DO NOTHING;
		`, a.CustomerID, a.Points)
		if err != nil {
			log.Printf("Failed to seed loyalty account %s: %v", a.CustomerID, err)
		}
	}
}

func seedCoupons(db *sql.DB) {
	coupons := []struct {
		Code       string
		Kind       string
		Value      string
		MinSpend   string
		UsageLimit sql.NullInt64
		ProductIDs []string
	}{
		{"DISC20", "fixed", "20000", "100000", sql.NullInt64{}, nil},
		{"WELCOME10", "percent", "10", "0", sql.NullInt64{Int64: 100, Valid: true}, nil},
		{"KOPI15", "percent", "15", "0", sql.NullInt64{}, []string{"kopi-arabika"}},
	}

	fmt.Println("Seeding Coupons...")
	for _, c := range coupons {
		ids := c.ProductIDs
		if ids == nil {
			ids = []string{}
		}
		_, err := db.Exec(`
			INSERT INTO coupons (code, kind, value, min_spend, usage_limit, valid_from, valid_to, product_ids)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW() + INTERVAL '1 year', $6)
			ON CONFLICT (code) DO NOTHING;
		`, c.Code, c.Kind, c.Value, c.MinSpend, c.UsageLimit, pq.Array(ids))
		if err != nil {
			log.Printf("Failed to seed coupon %s: %v", c.Code, err)
		}
	}
}
