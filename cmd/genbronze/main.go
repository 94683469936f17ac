package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

func main() {
	var count int
	var outDir string
	flag.IntVar(&count, "count", 100, "number of rows per bronze file")
	flag.StringVar(&outDir, "out", "./data_zone/bronze_files", "bronze output directory")
	flag.Parse()

	if err := generate(count, outDir); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

// generate writes sample bronze extracts with the quirks the pipeline has to
// absorb: alias column names, numeric-as-string, empty required fields and
// repeated natural keys.
func generate(count int, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := writeProducts(filepath.Join(outDir, "business_product_data.csv"), count, rng); err != nil {
		return err
	}
	if err := writeOrders(filepath.Join(outDir, "operations_order_data.csv"), count, rng); err != nil {
		return err
	}
	log.Printf("generated %d-row bronze files in %s", count, outDir)
	return nil
}

func writeProducts(path string, count int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	// "Product ID" exercises column-name standardization.
	if err := w.Write([]string{"Product ID", "product_name", "price"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("p%d", i+1)
		name := fmt.Sprintf("product %d", i+1)
		if rng.Intn(20) == 0 {
			name = "" // trips the not-null rule
		}
		price := fmt.Sprintf("%d.%02d", 1+rng.Intn(99), rng.Intn(100))
		if err := w.Write([]string{id, name, price}); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	// One duplicate natural key at the end.
	if count > 0 {
		if err := w.Write([]string{"p1", "product 1", "5.00"}); err != nil {
			return fmt.Errorf("write duplicate row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeOrders(path string, count int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"orderid", "productid", "quantity", "order_date"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	base := time.Now().UTC().Add(-24 * time.Hour)
	for i := 0; i < count; i++ {
		row := []string{
			fmt.Sprintf("o%d", i+1),
			fmt.Sprintf("p%d", 1+rng.Intn(count)),
			fmt.Sprintf("%d", 1+rng.Intn(5)),
			base.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05"),
		}
		if rng.Intn(25) == 0 {
			row[2] = "two" // trips type-conformance
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	return w.Error()
}
