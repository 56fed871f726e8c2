// Package config loads queryguard server configuration.
//
// Configuration comes from defaults, an optional YAML, JSON or TOML file and
// QUERYGUARD_* environment variables, in increasing priority. Nested keys
// map to environment variables with underscores:
//
//	server.addr     -> QUERYGUARD_SERVER_ADDR
//	links.backend   -> QUERYGUARD_LINKS_BACKEND
//
// # File Structure
//
//	server:
//	  addr: ":8080"
//	  base_url: "http://localhost:8080/"
//	  allowed_origins: ["http://localhost:8080"]
//	  shutdown_timeout: 10s
//	guard:
//	  unknown_policy: keep
//	  history: replace
//	links:
//	  backend: sqlite
//	  path: ./data/links.db
//	metrics:
//	  enabled: true
//	log:
//	  level: info
//	  format: text
//
// # Usage
//
//	cfg, err := config.Load("queryguard.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Server.Addr)
package config
