// Package config loads the extractor client's settings.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/excelextractor/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. If the file exists but fields are missing/empty, use defaults
//  5. Environment variables override the API base and supply credentials
//
// LoadDotEnv may be called first to populate the environment from a .env
// file in the working directory.
//
// # Default Values
//
//   - Config file: ~/.config/excelextractor/config.toml
//   - API base: http://127.0.0.1:8000
//   - Download directory: ~/Downloads
//   - Log file: ~/.local/state/excelextractor/excelextractor.log
//   - Output name: merged_output.xlsx
//   - Re-authentication redirect delay: 1.5s
//   - Request timeout: 10s (uploads and downloads are not bounded by it)
//
// # TOML Format
//
//	api_base = "https://extractor.example.com"
//	download_dir = "~/Documents/extracted"
//	log_file = "~/.local/state/excelextractor/excelextractor.log"
//	output_name = "merged_output.xlsx"
//	redirect_delay_ms = 1500
//	request_timeout_ms = 10000
//
// All fields are optional. Tilde expansion is performed for paths.
//
// # Environment
//
//   - EXTRACTOR_API_BASE: overrides api_base
//   - EXTRACTOR_USER, EXTRACTOR_PASSWORD: log in at startup
//   - EXTRACTOR_TOKEN: reuse an already issued bearer token
//
// Credentials are never read from or written to the TOML file.
//
// # Error Handling
//
// Load returns errors for path expansion failures, read errors other than
// os.ErrNotExist, and TOML parse errors. A missing file is not an error.
package config
