//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the sectional project using Mage.
//
// Usage:
//
//	mage build          Compile the sectional binary to bin/
//	mage test:all       Run all tests
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Run all tests and write coverage.out
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install sectional to GOPATH/bin
//	mage stats          Print Go LOC and documentation word counts
package main

// Default target when mage runs without arguments.
var Default = Build
