// Package textutil provides small text helpers shared by stages and
// publishers: whitespace collapsing, rune-safe truncation, and key-safe
// tokens for object storage paths.
package textutil
