// Package main implements a maintenance script that recomputes the
// materialized path and level of every tenant from the parent chain.
// It repairs trees imported from systems that only stored parent
// pointers, and verifies an existing tree when run with --dry-run.
//
// Usage:
//
//	./backfill-paths --dry-run          # Report rows that would change
//	./backfill-paths                    # Rewrite paths and levels
//	./backfill-paths --root=<slug>      # Restrict to one root's subtree
//
// Environment Variables:
//
//	DATABASE_URL - PostgreSQL connection string
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"console-service/internal/models"
)

// BackfillStats tracks backfill progress
type BackfillStats struct {
	TenantsFound   int
	TenantsChanged int
	TenantsOK      int
	Orphans        int
	Cycles         int
	StartTime      time.Time
	EndTime        time.Time
}

func (s *BackfillStats) Print() {
	duration := s.EndTime.Sub(s.StartTime)
	fmt.Println("\n========================================")
	fmt.Println("BACKFILL SUMMARY")
	fmt.Println("========================================")
	fmt.Printf("Duration:         %v\n", duration.Round(time.Second))
	fmt.Printf("Tenants Found:    %d\n", s.TenantsFound)
	fmt.Printf("Tenants Changed:  %d\n", s.TenantsChanged)
	fmt.Printf("Tenants OK:       %d\n", s.TenantsOK)
	fmt.Printf("Orphans:          %d\n", s.Orphans)
	fmt.Printf("Cycles:           %d\n", s.Cycles)
	fmt.Println("========================================")
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Report changes without applying them")
	rootSlug := flag.String("root", "", "Restrict to the subtree of one root (by slug)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *dryRun {
		log.Println("=== DRY RUN MODE - No changes will be made ===")
	}

	db, err := initDatabase(*verbose)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	stats := &BackfillStats{StartTime: time.Now()}
	if err := runBackfill(db, *dryRun, *rootSlug, stats); err != nil {
		log.Fatalf("Backfill failed: %v", err)
	}

	stats.EndTime = time.Now()
	stats.Print()

	if stats.Orphans > 0 || stats.Cycles > 0 {
		os.Exit(1)
	}
}

func initDatabase(verbose bool) (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	logLevel := logger.Silent
	if verbose {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Connected to database")
	return db, nil
}

func runBackfill(db *gorm.DB, dryRun bool, rootSlug string, stats *BackfillStats) error {
	var tenants []*models.Tenant
	if err := db.Order("created_at").Find(&tenants).Error; err != nil {
		return fmt.Errorf("failed to query tenants: %w", err)
	}

	byID := make(map[uuid.UUID]*models.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}

	stats.TenantsFound = len(tenants)
	log.Printf("Found %d tenants", len(tenants))

	var changed []*models.Tenant
	for _, t := range tenants {
		path, ok := computePath(t, byID, stats)
		if !ok {
			continue
		}
		if rootSlug != "" && t.RootSlug() != rootSlug && !strings.HasPrefix(path, rootSlug+models.PathSeparator) && path != rootSlug {
			continue
		}

		level := models.LevelForPath(path)
		if t.Path == path && t.Level == level {
			stats.TenantsOK++
			continue
		}

		log.Printf("  %s: path %q -> %q, level %d -> %d", t.Slug, t.Path, path, t.Level, level)
		t.Path = path
		t.Level = level
		changed = append(changed, t)
	}

	stats.TenantsChanged = len(changed)
	if dryRun || len(changed) == 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, t := range changed {
			update := tx.Model(&models.Tenant{}).Where("id = ?", t.ID).
				Updates(map[string]interface{}{"path": t.Path, "level": t.Level})
			if update.Error != nil {
				return fmt.Errorf("failed to update tenant %s: %w", t.Slug, update.Error)
			}
		}
		log.Printf("Rewrote %d tenants", len(changed))
		return nil
	})
}

// computePath walks the parent chain up to the root and joins the slugs.
// Broken chains and cycles are reported and skipped.
func computePath(t *models.Tenant, byID map[uuid.UUID]*models.Tenant, stats *BackfillStats) (string, bool) {
	segments := []string{t.Slug}
	seen := map[uuid.UUID]bool{t.ID: true}

	current := t
	for current.ParentID != nil {
		parent, ok := byID[*current.ParentID]
		if !ok {
			log.Printf("  WARNING: tenant %s references missing parent %s", current.Slug, *current.ParentID)
			stats.Orphans++
			return "", false
		}
		if seen[parent.ID] {
			log.Printf("  WARNING: cycle detected through tenant %s", parent.Slug)
			stats.Cycles++
			return "", false
		}
		seen[parent.ID] = true
		segments = append([]string{parent.Slug}, segments...)
		current = parent
	}

	return strings.Join(segments, models.PathSeparator), true
}
