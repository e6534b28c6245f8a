// Package exporter renders the live network snapshot in the Prometheus
// exposition format so an existing Prometheus server can scrape /metrics.
//
// Families are built directly as client_model messages from a snapshot
// read at scrape time; nothing is cached between scrapes.
package exporter
