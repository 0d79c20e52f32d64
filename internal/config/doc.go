// Package config loads the koa client configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/koa/config.toml (default)
//  3. If the config file doesn't exist, fall back to built-in defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # File Format
//
//	server          = "https://koa.ipac.caltech.edu/"
//	lookup_url      = "https://exoplanetarchive.ipac.caltech.edu/cgi-bin/Lookup/nph-lookup"
//	cookie_path     = "~/.config/koa/cookies.txt"
//	format          = "ipac"     # votable, ipac, csv, tsv
//	maxrec          = -1         # -1 returns every row
//	poll_interval   = "2s"
//	poll_timeout    = "2h"       # "0s" waits forever
//	request_timeout = "60s"
//	log_level       = "info"
//	log_format      = "text"     # or "json"
//	log_file        = "~/.local/state/koa/koa.log"
//
//	[download]
//	concurrency = 4
//	rate_limit  = 2.0            # requests per second, 0 is unlimited
//	burst       = 4
//
// Paths accept a leading ~. Durations use Go syntax. Values are trimmed.
//
// The archive endpoints (TAP, login, makeQuery, calibration and level-1
// lists, file retrieval) all hang off server; see Config.Endpoints.
package config
