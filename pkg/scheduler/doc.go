// Package scheduler runs background maintenance jobs such as the TLS
// context refresh.
//
// Fixed-delay jobs wait the full delay between the end of one run and the
// start of the next, so a slow run never overlaps the following one. Cron
// jobs follow a standard cron expression. A failing or panicking run is
// logged and the job keeps its schedule.
package scheduler
