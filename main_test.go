package main

import "testing"

func TestValidateFlags_ColorMutualExclusion(t *testing.T) {
	origNoColor := noColor
	origForceColor := forceColor
	origConsole := console
	origLogFile := logFile
	origDebug := debug
	defer func() {
		noColor = origNoColor
		forceColor = origForceColor
		console = origConsole
		logFile = origLogFile
		debug = origDebug
	}()

	tests := []struct {
		name        string
		noColor     bool
		forceColor  bool
		expectError bool
	}{
		{name: "both flags set - mutually exclusive error", noColor: true, forceColor: true, expectError: true},
		{name: "no-color alone - valid", noColor: true, forceColor: false, expectError: false},
		{name: "color alone - valid", noColor: false, forceColor: true, expectError: false},
		{name: "neither flag set - valid", noColor: false, forceColor: false, expectError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console, logFile, debug = false, false, false
			noColor, forceColor = tt.noColor, tt.forceColor

			err := validateFlags()

			if tt.expectError && err == nil {
				t.Errorf("validateFlags() expected error for noColor=%v, forceColor=%v, got nil", tt.noColor, tt.forceColor)
			}
			if !tt.expectError && err != nil {
				t.Errorf("validateFlags() unexpected error for noColor=%v, forceColor=%v: %v", tt.noColor, tt.forceColor, err)
			}
		})
	}
}

func TestValidateFlags_DebugRequiresConsoleOrLog(t *testing.T) {
	origConsole := console
	origLogFile := logFile
	origDebug := debug
	origNoColor := noColor
	origForceColor := forceColor
	defer func() {
		console = origConsole
		logFile = origLogFile
		debug = origDebug
		noColor = origNoColor
		forceColor = origForceColor
	}()

	tests := []struct {
		name        string
		console     bool
		logFile     bool
		debug       bool
		expectError bool
	}{
		{name: "debug without console or log - error", debug: true, expectError: true},
		{name: "debug with console - valid", debug: true, console: true, expectError: false},
		{name: "debug with log - valid", debug: true, logFile: true, expectError: false},
		{name: "no debug - valid", debug: false, expectError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noColor, forceColor = false, false
			console, logFile, debug = tt.console, tt.logFile, tt.debug

			err := validateFlags()

			if tt.expectError && err == nil {
				t.Errorf("validateFlags() expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("validateFlags() unexpected error: %v", err)
			}
		})
	}
}
