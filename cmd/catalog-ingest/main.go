// Command catalog-ingest loads the product catalog from gzip-compressed
// shard files. Each line is `sku|family|name|size|color|price`. A SKU is
// authoritative only when it appears in at least two shards; single-shard
// entries are treated as feed noise and dropped.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atelier-commerce/checkout/internal/domain/pricing"
	"github.com/atelier-commerce/checkout/internal/domain/product"
	"github.com/atelier-commerce/checkout/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	numShards     = 3
	progressEvery = 1_000_000
)

// record is one parsed catalog line. Size and color are empty for base
// (non-variant) rows.
type record struct {
	sku    string
	family string
	name   string
	size   string
	color  string
	price  decimal.Decimal
}

// shardResult holds the candidate records found in one shard during pass 2.
type shardResult struct {
	masks   map[string]uint
	records []record
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalogN.gz shard files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	shards := make([]string, numShards)
	for i := range numShards {
		shards[i] = filepath.Join(dataDir, fmt.Sprintf("catalog%d.gz", i+1))
	}
	for _, f := range shards {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check shard %s", f)
		}
	}

	// Pass 1: one bloom filter of SKUs per shard, built concurrently.
	slog.Info("pass 1: building sku filters", slog.Int("shards", numShards))

	filters, err := buildSKUFilters(ctx, shards)
	if err != nil {
		return errors.Wrap(err, "build sku filters")
	}

	// Pass 2: keep records whose SKU appears in 2+ shards.
	slog.Info("pass 2: resolving authoritative skus")

	records, err := findAuthoritativeRecords(ctx, shards, filters)
	if err != nil {
		return errors.Wrap(err, "find authoritative records")
	}

	slog.Info("authoritative records resolved", slog.Int("count", len(records)))

	if len(records) == 0 {
		slog.Info("nothing to ingest")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCatalog(ctx, postgres.NewProductRepository(pool), records); err != nil {
		return errors.Wrap(err, "write catalog to database")
	}

	return nil
}

// buildSKUFilters creates one bloom filter per shard, concurrently.
func buildSKUFilters(ctx context.Context, shards []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range shards {
		g.Go(buildFilterForShard(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForShard(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(line string) {
			rec, ok := parseLine(line)
			if !ok {
				return
			}
			filter.AddString(rec.sku)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("shard", idx+1),
					slog.Uint64("lines", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for shard %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("shard", idx+1),
			slog.Uint64("total_lines", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findAuthoritativeRecords re-streams each shard and checks SKUs against the
// OTHER shards' filters. Records survive only if their SKU appears in 2+
// shards.
func findAuthoritativeRecords(ctx context.Context, shards []string, filters []*bloom.BloomFilter) ([]record, error) {
	results := make([]shardResult, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range shards {
		g.Go(findCandidatesInShard(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge presence bitmasks across shards.
	merged := make(map[string]uint)
	for _, r := range results {
		for sku, mask := range r.masks {
			merged[sku] |= mask
		}
	}

	var out []record
	seen := make(map[string]struct{})
	for _, r := range results {
		for _, rec := range r.records {
			if bits.OnesCount(merged[rec.sku]) < 2 {
				continue
			}
			// Variant rows repeat across shards; keep one per sku+size+color.
			key := rec.sku + "|" + rec.size + "|" + rec.color
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, rec)
		}
	}

	return out, nil
}

func findCandidatesInShard(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []shardResult,
) func() error {
	return func() error {
		res := shardResult{masks: make(map[string]uint)}
		shardBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(line string) {
			rec, ok := parseLine(line)
			if !ok {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("shard", idx+1),
					slog.Uint64("lines", count),
				)
			}

			res.masks[rec.sku] |= shardBit
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(rec.sku) {
					res.records = append(res.records, rec)
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan shard %d", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("shard", idx+1),
			slog.Uint64("total_lines", count),
			slog.Int("candidates", len(res.records)),
		)

		results[idx] = res
		return nil
	}
}

// parseLine splits `sku|family|name|size|color|price`. Short or unpriceable
// lines are dropped.
func parseLine(line string) (record, bool) {
	parts := strings.Split(line, "|")
	if len(parts) != 6 {
		return record{}, false
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[5]))
	if err != nil {
		return record{}, false
	}
	rec := record{
		sku:    strings.TrimSpace(parts[0]),
		family: strings.TrimSpace(parts[1]),
		name:   strings.TrimSpace(parts[2]),
		size:   strings.TrimSpace(parts[3]),
		color:  strings.TrimSpace(parts[4]),
		price:  price,
	}
	if rec.sku == "" || rec.name == "" {
		return record{}, false
	}
	return rec, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// colorClass buckets a color the way the pricing tables do: white and black
// price from the neutral table, everything else from the colored one.
func colorClass(color string) string {
	switch strings.ToLower(color) {
	case "":
		return ""
	case "white", "black":
		return "neutral"
	default:
		return "colored"
	}
}

// writeCatalog upserts products and their variant price rows. A record
// without size and color sets the product base price; variant rows land in
// variant_prices keyed by size and color class.
func writeCatalog(ctx context.Context, repo *postgres.ProductRepository, records []record) error {
	slog.Info("writing catalog to database", slog.Int("records", len(records)))

	products := make(map[string]struct{})
	for _, rec := range records {
		if _, done := products[rec.sku]; !done {
			base := rec.price
			if err := repo.Upsert(ctx, &product.Product{
				SKU:       rec.sku,
				Family:    pricing.Family(rec.family),
				Name:      rec.name,
				BasePrice: base,
			}); err != nil {
				return err
			}
			products[rec.sku] = struct{}{}
		}

		if rec.size == "" && rec.color == "" {
			continue
		}
		if err := repo.UpsertVariantPrice(ctx, &product.VariantPrice{
			SKU:        rec.sku,
			Size:       rec.size,
			ColorClass: colorClass(rec.color),
			Price:      rec.price,
		}); err != nil {
			return err
		}
	}

	slog.Info("catalog written", slog.Int("products", len(products)))
	return nil
}
