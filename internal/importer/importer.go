package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"chowfast/internal/domain"
	"chowfast/internal/money"
)

type ProductWriter interface {
	UpsertProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
}

type CategoryWriter interface {
	UpsertCategory(ctx context.Context, c domain.Category) (*domain.Category, error)
}

// CSVImporter reads package bundle CSV files and upserts products.
//
// Expected headers: id,name,description,price,category,items,image.
// items is pipe separated. A row with a blank id continues the previous
// package and only contributes items.
type CSVImporter struct {
	reader     *csv.Reader
	products   ProductWriter
	categories CategoryWriter
	seen       map[string]bool
}

func NewCSVImporter(r io.Reader, products ProductWriter, categories CategoryWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:     csvr,
		products:   products,
		categories: categories,
		seen:       map[string]bool{},
	}
}

type csvRow struct {
	ID       string
	Name     string
	Desc     string
	Price    string
	Category string
	Items    []string
	Image    string
}

// Run parses CSV rows and upserts products grouped by id.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["id"]; !ok {
		return 0, fmt.Errorf("read headers: missing id column")
	}

	var (
		current  *csvRow
		imported int
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		row := parseRow(record, index)
		if row == nil {
			continue
		}

		if row.ID != "" {
			if current != nil {
				if err := i.save(ctx, current); err != nil {
					return imported, err
				}
				imported++
			}
			current = row
			continue
		}

		if current != nil {
			current.Items = append(current.Items, row.Items...)
		}
	}

	if current != nil {
		if err := i.save(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}

	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	if row.Name == "" || row.Price == "" || row.Category == "" {
		return fmt.Errorf("invalid product row (missing required fields) for id %q", row.ID)
	}
	price, err := money.ParseEther(row.Price)
	if err != nil {
		return fmt.Errorf("invalid price for id %q: %w", row.ID, err)
	}
	if _, err := money.ToWei(price); err != nil {
		return fmt.Errorf("invalid price for id %q: %w", row.ID, err)
	}

	if err := i.ensureCategory(ctx, row.Category); err != nil {
		return err
	}

	image := row.Image
	if image == "" {
		image = "/images/packages/" + row.ID + ".jpg"
	}

	p := domain.Product{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Desc,
		Price:       price,
		Category:    row.Category,
		Items:       row.Items,
		Image:       image,
	}
	if _, err := i.products.UpsertProduct(ctx, p); err != nil {
		return fmt.Errorf("upsert product %q: %w", row.ID, err)
	}
	return nil
}

// ensureCategory creates a placeholder category once per key. Blank
// descriptions never overwrite existing ones.
func (i *CSVImporter) ensureCategory(ctx context.Context, key string) error {
	if i.categories == nil || i.seen[key] {
		return nil
	}
	if _, err := i.categories.UpsertCategory(ctx, domain.Category{Key: key, Title: titleFromKey(key)}); err != nil {
		return fmt.Errorf("upsert category %q: %w", key, err)
	}
	i.seen[key] = true
	return nil
}

func titleFromKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) *csvRow {
	id := pick(record, index, "id")
	items := splitItems(pick(record, index, "items"))

	if id == "" && len(items) == 0 {
		return nil
	}

	return &csvRow{
		ID:       id,
		Name:     pick(record, index, "name"),
		Desc:     pick(record, index, "description"),
		Price:    pick(record, index, "price"),
		Category: pick(record, index, "category"),
		Items:    items,
		Image:    pick(record, index, "image"),
	}
}

func splitItems(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, "|") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
