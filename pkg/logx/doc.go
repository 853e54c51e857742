// Package logx is notifyq's structured logging layer, a thin wrapper over
// zerolog.
//
// Console output is human readable with a short caller, the optional file sink
// is JSON, and the remote sink forwards warn+ lines (rate limited) to a
// Forwarder such as the Telegram display.
package logx
