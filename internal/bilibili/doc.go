// Package bilibili resolves video ids into downloadable stream URLs and
// fetches the danmaku and comments sidecars.
//
// # Resolution
//
// Resolve performs two calls:
//
//  1. /x/web-interface/view for titles, the owner and the page cid
//  2. /x/player/playurl for the DASH manifest
//
// The requested quality is clamped to 720P (GuestQualityCeiling) unless the
// request carries credentials. The best video at or below the ceiling is
// chosen, preferring the requested codec; the best audio is chosen by
// bandwidth. If nothing is at or below the ceiling the lowest quality is
// used and StreamDescriptor.Fallback is set.
//
// # Sidecars
//
//	records, err := resolver.FetchDanmaku(ctx, desc.Content.CID)
//	replies, err := resolver.FetchComments(ctx, desc.Content.AID, 5)
//
// # Errors
//
// Failures wrap one of ErrInvalidID, ErrMetadataUnavailable,
// ErrFormatUnsupported or ErrSidecarUnavailable, so callers can branch with
// errors.Is.
package bilibili
