//go:build gst

package cmd

// The GStreamer backend needs cgo and the GStreamer development headers, so
// it is only linked into builds made with -tags gst.
import _ "github.com/zjrosen/displayboard/internal/audio/gst"
