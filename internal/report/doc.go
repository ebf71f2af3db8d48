// Package report renders finished run summaries in Markdown and JSON
// formats.
package report
