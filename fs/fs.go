package appfs

import "embed"

// FS embeds the app's static assets (database migrations).
//go:embed migrations
var FS embed.FS
