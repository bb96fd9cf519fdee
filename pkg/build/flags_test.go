// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
		wantName    string
		wantVersion string
	}{
		{"Development Build", "", "", "", "", "", "beatlight", "dev"},
		{"Missing BuildName", "", "2026-10-01", "abcdef123", "v1.0.0", "BuildName is required", "", ""},
		{"Missing BuildTime", "beatlight", "", "abcdef123", "v1.0.0", "BuildTime is required", "", ""},
		{"Missing BuildCommit", "beatlight", "2026-10-01", "", "v1.0.0", "BuildCommit is required", "", ""},
		{"Missing BuildVersion", "beatlight", "2026-10-01", "abcdef123", "", "BuildVersion is required", "", ""},
		{"Release Build", "beatlight-pro", "2026-10-01", "abcdef123", "v1.0.0", "", "beatlight-pro", "v1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = developmentFlags()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			flags := GetBuildFlags()
			if flags.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", flags.Name, tt.wantName)
			}
			if flags.Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", flags.Version, tt.wantVersion)
			}
			if flags.Description == "" {
				t.Error("Description should keep its default")
			}
		})
	}
}

func TestString(t *testing.T) {
	f := &ldFlags{Name: "beatlight", Version: "v1.2.0", Commit: "abc", Time: "today"}
	if got, want := f.String(), "beatlight v1.2.0 (commit abc, built today)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
