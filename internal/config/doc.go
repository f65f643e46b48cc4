// Package config provides configuration management for bilibili-downloader.
//
// This package handles:
//   - Loading and saving settings from JSON or TOML files
//   - Default configuration values
//   - Validation of user supplied values
//   - Conversion to PathConfig and ClientConfig for other packages
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Downloads to ~/Videos/Bilibili/{title}
//	// 1080P AVC with the best audio track
//	// Originals deleted after a successful merge
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.toml")
//	if err != nil {
//	    // Invalid file; a missing file yields defaults
//	}
//
// The file format follows the extension: ".toml" is parsed as TOML, anything
// else as JSON.
//
// A Settings value is built once by the entry point and passed to every
// component that needs it. There is no package level configuration.
package config
