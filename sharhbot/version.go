package sharhbot

// Overwritten at build time via:
// -ldflags "-X sharhbot/sharhbot.Version=$$(date +'%Y%m%d')"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)
