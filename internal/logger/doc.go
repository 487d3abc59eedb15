// Package logger provides structured, component-filtered logging for yt2ogg.
//
// Diagnostics are kept apart from the user-facing console messages the
// pipeline prints: by default only WARN and above from the app and pipeline
// components reach stderr.
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentDownloader)
//	log.Info("Starting download", logger.Fields{
//		"url":  "https://example.com/audio.webm",
//		"size": 1024,
//	})
//
//	config := logger.DefaultConfig()
//	config.Level = logger.DEBUG
//	config.Format = logger.FormatJSON
//	logger.SetGlobalLogger(logger.New(config))
//
// A LogConfig can also be loaded from a JSON file or from YT2OGG_LOG_*
// environment variables. File outputs ("file:/path/to/log") may carry a
// rotation block, in which case writes go through a RotatingWriter.
package logger
