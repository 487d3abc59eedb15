// Package yt2ogg downloads the best audio stream of a YouTube video and
// converts it with ffmpeg, optionally extracting the largest thumbnail as
// cover.png next to the output.
//
// A run is strictly sequential:
//   - resolve the identifier (no network access)
//   - fetch metadata and the stream manifest
//   - pick the audio-only stream with the highest bitrate
//   - download it to temp.<container> in the output directory
//   - convert it and delete the staged file
//   - optionally repeat download and convert for the cover
//
// Staged file names are fixed, so two runs must not share an output
// directory at the same time.
package yt2ogg
