// Package stream turns a pull-based step producer into an ordered event
// stream that stays alive during long silent periods.
//
// The Coordinator keeps exactly one fetch from the producer outstanding and
// races it against a keepalive timer. When the timer fires first a keepalive
// event is emitted and the same fetch keeps running; the producer is never
// asked for a second step while one is pending, so steps are neither lost
// nor reordered. Writer frames the resulting events as Server-Sent Events.
package stream
