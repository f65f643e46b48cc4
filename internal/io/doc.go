// Package ioutils provides file system and image processing utilities for
// job working directories.
//
// This package contains functions for:
//   - Atomic file and JSON writes for sidecars and the ledger
//   - Best-effort cleanup of job artifacts
//   - Directory creation
//   - Cover art resizing and format conversion
//
// # File Operations
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/videos/Some Title")
//
//	// Persist a sidecar without exposing a half-written file
//	err = ioutils.WriteJSON(ctx, job.DanmakuPath, records)
//
//	// Delete raw streams after a merge, ignoring files that are already gone
//	err = ioutils.RemoveFiles(job.VideoPath, job.AudioPath)
//
// # Image Processing
//
// The ImageService handles cover art manipulation:
//
//	svc := ioutils.NewImageService()
//
//	// Bound to 1280x1280 and convert to JPEG
//	jpeg, _ := svc.PrepareCover(ctx, imageData, 1280)
package ioutils
