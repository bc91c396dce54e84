// Package server owns the embedded HTTP check server and its lifecycle.
//
// A Manager moves between Stopped and Running(port). Start binds the
// listener before reporting success, so Running always means a socket is
// bound; Stop waits for the serve loop to exit so the port is free again
// when it returns. Every transition, including a failed start, is published
// as events.ServerStatusChanged after the manager state has been updated;
// handlers may read Status from the callback but must not start or stop the
// manager synchronously.
package server
