// Package app keeps the desktop-facing surfaces consistent with the embedded
// server and the check coordinator.
//
// Three observers follow the server state: the tray menu item, the options
// view and the persisted configuration. Every operation here performs the
// server transition first and then writes back what actually happened, so a
// failed bind never leaves "run server" checked anywhere.
package app
