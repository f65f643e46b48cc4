// Package model defines the core data structures used throughout
// the bilibili-downloader application.
//
// # StreamDescriptor
//
// StreamDescriptor is what the resolver hands to the download pipeline:
// the concrete video/audio URLs plus title and content metadata.
//
//	desc, err := resolver.Resolve(ctx, req)
//	fmt.Println(desc.VideoURL, desc.QualityLabel)
//
// # Job
//
// Job carries the on-disk layout of one download. Paths are computed from a
// PathConfig and the sanitized video title:
//
//	job := model.NewJob("BV1xx411c7mD", 1, "My Video", &model.PathConfig{DownloadsPath: "/videos"})
//	fmt.Println(job.WorkingDir) // "/videos/My Video"
//	fmt.Println(job.MergedPath) // "/videos/My Video/My Video.mp4"
//
// # Progress
//
// ProgressEvent reports byte or percentage progress for one Stage.
package model
