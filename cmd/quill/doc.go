// Command quill runs the grammar-checking companion and controls a running
// instance over its control socket.
//
// "quill run" hosts the process (optionally with a tray icon); "quill start"
// launches it in the background. Other commands talk to the running process
// and, where a setting is only persisted, fall back to editing the config
// file when nothing is running.
package main
