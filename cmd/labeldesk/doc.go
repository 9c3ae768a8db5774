// Package main hosts the labeldesk CLI: the foreground daemon runner plus
// commands that talk to a running daemon over its IPC socket.
package main
