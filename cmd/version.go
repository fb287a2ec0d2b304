package cmd

// Version is the application version.
// Set at build time with ldflags, for example:
// go build -ldflags "-X github.com/technica-vn/aiknow-probe/cmd.Version=1.0.0"
var Version = "0.1.0"
