package main

import "time"

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	WorkDir    string
	NoStart    bool
}

// ClientFlags holds flags shared by commands that talk to a running daemon.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}
