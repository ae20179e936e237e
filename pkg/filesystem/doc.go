// Package filesystem provides filesystem implementations for server-sync.
//
// This package contains implementations of the types.FS interface;
// production code uses the standard OS filesystem.
package filesystem
