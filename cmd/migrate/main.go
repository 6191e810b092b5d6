package main

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/config"
)

// Applies migrations/*.up.sql in lexical order against DATABASE_URL.
func main() {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	files, err := filepath.Glob("migrations/*.up.sql")
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	sort.Strings(files)

	for _, file := range files {
		stmt, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("read %s: %v", file, err)
		}

		if strings.TrimSpace(string(stmt)) == "" {
			continue
		}

		if _, err := db.Exec(string(stmt)); err != nil {
			log.Fatalf("apply %s: %v", file, err)
		}

		log.Printf("applied %s", file)
	}

	log.Println("migrations complete")
}
