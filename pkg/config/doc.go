// Package config loads step collections from YAML or JSON files.
package config
