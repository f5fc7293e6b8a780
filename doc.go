// Package streamer provides the core of a media streaming pipeline: a
// format and encoding model, an element capability model, a builder that
// validates links and negotiates formats, and a lifecycle-gated duplex
// transport carrying decoded frames between elements.
//
// Key pieces include:
//   - ImageFormat, VideoFrameFormat, AudioFrameFormat, SubtitleFrameFormat and
//     the Video/Audio/SubtitleEncoding identifiers, each with vendor extensions
//   - Element and its nine capability accessors (sources, sinks, decoders)
//   - Builder with typed links (LinkVideo, LinkAudio, LinkSubtitle) and a
//     runtime Link for elements known only by ID
//   - Graph, per-kind Pipelines and the shared Lifecycle
//   - Driver for push mode; Pipeline.Pull for demand-driven walks
//   - Demuxers for MPEG-TS, RTP and RTMP input, and packet decoders
//   - Scale filter, TestPatternSource and AudioTestPatternSource
//
// # Architecture
//
//	Demuxer -> Decoder (source) -> Filter (sink+source) -> ... -> tap
//
// Building a graph partitions the linked elements into connected components
// per media kind. Every source in a component owns a bounded output
// transport; each downstream link reads its own queue of that transport, so
// a source may feed several sinks and every sink sees every frame. A sink
// accepts exactly one negotiated upstream format.
//
// # Lifecycle
//
// All pipelines of one build share one Lifecycle:
//
//	Null -> Ready (Build) -> Play <-> Pause -> Null (Close)
//
// Frames flow only in Play. While paused a full transport drops its oldest
// frame instead of blocking the producer.
//
// # Example
//
//	b := streamer.NewBuilder()
//	src := streamer.AddElement(b, streamer.NewTestPatternSource(streamer.TestPatternConfig{Frames: 30}))
//	scale := streamer.AddElement(b, streamer.NewScale(streamer.ScaleConfig{Width: 640, Height: 480}))
//	if err := streamer.LinkVideo(b, src, scale); err != nil {
//		return err
//	}
//	g, err := b.Build()
//	...
//	d := streamer.NewDriver(g, streamer.DefaultDriverConfig())
//	g.Play()
//	d.Start(ctx)
package streamer
