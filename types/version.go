package types

// Version is the canonical project version.
// The CLI, the notification payload schema, and the result-sink frame
// format share this version.
const Version = "2.1.0"
