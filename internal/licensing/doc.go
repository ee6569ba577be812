// Package licensing holds the license lifecycle rules. Everything here is pure:
// callers pass the stored license, the requesting device and the current time,
// and persist the returned Transition themselves.
package licensing
