// Package config provides configuration structures and utilities for clinicscan.
// It defines crawl limits, HTTP client settings, report preferences and the
// YAML configuration file that carries the scope and extraction rules.
package config
