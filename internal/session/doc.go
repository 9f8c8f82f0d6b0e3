// Package session manages viewer sessions over media lists.
//
// Each session owns a [medialist.Engine] and the [eventloop.Loop] that
// serves as its foreground. Every engine call is made from that loop via
// [Session.Do], so HTTP handlers running on arbitrary goroutines never
// touch an engine directly. Sessions subscribe to the library's change hub
// and are closed after an idle period by [Manager.Run].
package session
