package version

import "testing"

func withBuild(t *testing.T, v, c, b string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = v, c, b
}

func TestString(t *testing.T) {
	withBuild(t, "1.2.3", "abc1234", "2026-01-15T10:00:00Z")

	want := "1.2.3 (abc1234) built 2026-01-15T10:00:00Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestGet(t *testing.T) {
	withBuild(t, "0.3.0", "deadbee", "unknown")

	info := Get()
	if info.Version != "0.3.0" || info.Commit != "deadbee" || info.BuildTime != "unknown" {
		t.Errorf("Get() = %+v", info)
	}
}

func TestClientName(t *testing.T) {
	withBuild(t, "dev", "unknown", "unknown")

	if got := ClientName("fulltick"); got != "fulltick/dev" {
		t.Errorf("ClientName() = %q, want %q", got, "fulltick/dev")
	}
}

func TestDefaultValues(t *testing.T) {
	if Version == "" || Commit == "" || BuildTime == "" {
		t.Error("build variables should never be empty")
	}
}
