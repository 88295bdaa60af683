// Package dedupe provides a time-bounded claim cache so a piece of work
// keyed by a string runs at most once within a configurable window.
package dedupe
