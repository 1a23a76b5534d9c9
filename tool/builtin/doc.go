// Package builtin provides the tools every run carries regardless of the
// platform API: task tracking, dynamic category loading and output files.
package builtin
