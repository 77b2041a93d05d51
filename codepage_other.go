//go:build !windows

package main

// Console code pages are a Windows concept.
func setConsoleUTF8() {}
