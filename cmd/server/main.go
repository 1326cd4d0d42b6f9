package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"

	"github.com/quintile/maturity/internal/api"
	"github.com/quintile/maturity/internal/db"
	"github.com/quintile/maturity/internal/middleware"
)

func main() {
	// .env is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("maturity-server", flag.ExitOnError)
	var (
		_          = fs.String("config", "", "config file (optional), json format")
		addr       = fs.String("addr", ":8080", "listen address")
		dbPath     = fs.String("db", "", "sqlite database file; empty runs the in-memory store")
		migrations = fs.String("migrations", "", "migrations directory; empty uses the embedded files")
		rolesPath  = fs.String("roles", "", "role relevance mapping file, json; empty uses the built-in mapping")
		seed       = fs.Bool("seed", false, "load the sample question catalog on startup")
	)
	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix("MATURITY"),
	); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	store, err := openStore(*dbPath, *migrations)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	roleMap, err := loadRoleMapping(*rolesPath)
	if err != nil {
		log.Fatalf("load role mapping: %v", err)
	}

	if *seed {
		n := api.SeedSampleCatalog(store)
		log.Printf("seeded sample catalog: %d questions", n)
	}

	commit := os.Getenv("MATURITY_COMMIT")
	buildTime := os.Getenv("MATURITY_BUILD_TIME")

	mux := http.NewServeMux()
	api.NewRouter(store, roleMap).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"name":   "Maturity API",
			"locale": middleware.LocaleFromContext(r.Context()),
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	handler := middleware.CORS(middleware.SecureHeaders(middleware.Locale(middleware.WithAuth(mux))))

	log.Printf("maturity server listening on %s", *addr)
	if err := http.ListenAndServe(*addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(dbPath, migrationsDir string) (api.Store, error) {
	if dbPath == "" {
		log.Printf("no database file configured, using in-memory store")
		return api.NewMemoryStore(), nil
	}
	store, err := db.Open(dbPath, migrationsDir)
	if err != nil {
		return nil, err
	}
	log.Printf("sqlite store open at %s", dbPath)
	return store, nil
}

func loadRoleMapping(path string) (map[string][]string, error) {
	if path == "" {
		return api.DefaultRoleMapping(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var mapping map[string][]string
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return mapping, nil
}
