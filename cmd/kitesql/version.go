package main

// CLIVersion is overridden at build time with -ldflags "-X main.CLIVersion=...".
var CLIVersion = "dev"
