// Package events is the in-process notification bus.
//
// Publishers hand an Event to Bus.Publish; every handler registered at that
// moment receives it synchronously, in registration order, on the publishing
// goroutine. Handlers that touch UI state or block must hand the event off to
// their own goroutine. A panicking handler aborts delivery of that event to
// the remaining handlers and propagates to the publisher.
package events
