// Package questreset enumerates and deletes questworld records in Redis by
// key category.
package questreset

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/questworld/internal/platform/config"
	"github.com/louisbranch/questworld/internal/platform/timeouts"
	questredis "github.com/louisbranch/questworld/internal/services/quest/storage/redis"
)

const (
	defaultScanCount = 200
	unlinkBatchSize  = 500
)

// Config holds questreset command configuration.
type Config struct {
	RedisAddr     string        `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"       envDefault:"0"`
	Timeout       time.Duration `env:"RESET_TIMEOUT"  envDefault:"1m"`
	Categories    string
	DryRun        bool
	JSONOutput    bool
	ScanCount     int
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.ScanCount = defaultScanCount

	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "shared Redis address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "shared Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "shared Redis database index")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.StringVar(&cfg.Categories, "categories", "", "comma-separated key categories to reset (default: all)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "count matching keys without deleting them")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output a JSON report")
	fs.IntVar(&cfg.ScanCount, "scan-count", cfg.ScanCount, "SCAN batch size hint")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CategoryReport is the outcome for one key category.
type CategoryReport struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Matched int    `json:"matched"`
	Deleted int64  `json:"deleted"`
}

// Report summarizes one reset run.
type Report struct {
	DryRun     bool             `json:"dryRun"`
	Categories []CategoryReport `json:"categories"`
	Matched    int              `json:"matched"`
	Deleted    int64            `json:"deleted"`
}

// Run connects to Redis and resets the selected categories.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("redis address is required")
	}
	categories, err := selectCategories(cfg.Categories)
	if err != nil {
		return err
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  timeouts.RedisDial,
		ReadTimeout:  timeouts.RedisRead,
		WriteTimeout: timeouts.RedisWrite,
	})
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "close redis client: %v\n", closeErr)
		}
	}()

	report, err := Reset(ctx, client, categories, cfg.DryRun, cfg.ScanCount)
	if err != nil {
		return err
	}
	if cfg.JSONOutput {
		return outputJSON(out, report)
	}
	printReport(out, report)
	return nil
}

// Reset scans every category and, unless dryRun is set, unlinks the keys it
// finds. Keys written while the scan runs may be missed.
func Reset(ctx context.Context, client goredis.UniversalClient, categories []questredis.Category, dryRun bool, scanCount int) (Report, error) {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	report := Report{DryRun: dryRun, Categories: make([]CategoryReport, 0, len(categories))}
	for _, category := range categories {
		keys, err := scanKeys(ctx, client, category.Pattern, int64(scanCount))
		if err != nil {
			return Report{}, fmt.Errorf("scan %s keys: %w", category.Name, err)
		}
		entry := CategoryReport{Name: category.Name, Pattern: category.Pattern, Matched: len(keys)}
		if !dryRun {
			deleted, err := unlinkKeys(ctx, client, keys)
			if err != nil {
				return Report{}, fmt.Errorf("unlink %s keys: %w", category.Name, err)
			}
			entry.Deleted = deleted
		}
		report.Categories = append(report.Categories, entry)
		report.Matched += entry.Matched
		report.Deleted += entry.Deleted
	}
	return report, nil
}

func scanKeys(ctx context.Context, client goredis.UniversalClient, pattern string, count int64) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	iter := client.Scan(ctx, 0, pattern, count).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// SCAN may return a key more than once.
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func unlinkKeys(ctx context.Context, client goredis.UniversalClient, keys []string) (int64, error) {
	var deleted int64
	for start := 0; start < len(keys); start += unlinkBatchSize {
		end := min(start+unlinkBatchSize, len(keys))
		n, err := client.Unlink(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

// selectCategories resolves a comma-separated category list. Empty selects
// every category.
func selectCategories(list string) ([]questredis.Category, error) {
	all := questredis.Categories()
	names := splitCSV(list)
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]questredis.Category, len(all))
	for _, category := range all {
		byName[category.Name] = category
	}
	selected := make([]questredis.Category, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		category, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown category %q (known: %s)", name, strings.Join(categoryNames(all), ", "))
		}
		if _, dup := seen[category.Name]; dup {
			continue
		}
		seen[category.Name] = struct{}{}
		selected = append(selected, category)
	}
	return selected, nil
}

func categoryNames(categories []questredis.Category) []string {
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, category.Name)
	}
	return names
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func outputJSON(out io.Writer, report Report) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func printReport(out io.Writer, report Report) {
	verb := "deleted"
	if report.DryRun {
		verb = "matched (dry run)"
	}
	for _, category := range report.Categories {
		count := int64(category.Matched)
		if !report.DryRun {
			count = category.Deleted
		}
		fmt.Fprintf(out, "%-12s %6d %s  [%s]\n", category.Name, count, verb, category.Pattern)
	}
	if report.DryRun {
		fmt.Fprintf(out, "Total: %d keys matched, nothing deleted\n", report.Matched)
		return
	}
	fmt.Fprintf(out, "Total: %d keys deleted\n", report.Deleted)
}
