// Package history persists crawl runs, per-page outcomes, and saved
// images in a SQLite database so earlier sessions can be inspected and
// previously downloaded images recognized.
package history
