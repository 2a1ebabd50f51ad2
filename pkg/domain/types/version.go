package types

// Version is the application version, overwritten at build time with -ldflags
var Version = "dev"

// AppName is the command name shown in help and logs
const AppName = "vimeodl"
