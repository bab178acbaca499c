// Package fileutil provides file operation utilities for directory and file management.
//
// EnsureDir creates directories recursively, CopyFile copies files with
// support for explicit permissions, fsync, and atomic writes via
// temp-file-then-rename, and CopyDir/ReplaceDir copy whole trees. These are
// used throughout esenv for preparing instance directories, seeding data
// directories from cached templates, and writing configuration files.
package fileutil
