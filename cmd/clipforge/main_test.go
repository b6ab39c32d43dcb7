package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLedgerCommand(t *testing.T) {
	dir := t.TempDir()
	csv := "S.No,Clip Name,Action Class ID,Start Time Stamp,End Time Stamp,Description,Team,Equipment\n" +
		"1,clip_1.mp4,kick,00:00:01.000,00:00:03.000,corner,home,cam1\n" +
		"2,clip_4.mp4,pass,00:00:05.000,00:00:07.000,,away,cam2\n"
	if err := os.WriteFile(filepath.Join(dir, "clips_metadata.csv"), []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "ledger", dir)
	if err != nil {
		t.Fatalf("ledger error: %v", err)
	}
	for _, want := range []string{"clip_1.mp4", "clip_4.mp4", "corner", "2 clips, next clip_5.mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLedgerCommand_Missing(t *testing.T) {
	if _, err := execute(t, "ledger", t.TempDir()); err == nil {
		t.Fatal("expected error for directory without ledger")
	}
}

func TestLogCommand_Tail(t *testing.T) {
	dir := t.TempDir()
	lines := "[2024-03-01 10:00:00] Loaded video: match.mp4\n" +
		"[2024-03-01 10:00:05] Seeked to 00:00:01.000\n" +
		"[2024-03-01 10:00:09] Created clip_1.mp4\n"
	if err := os.WriteFile(filepath.Join(dir, "actions_log.txt"), []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "log", "-n", "2", dir)
	if err != nil {
		t.Fatalf("log error: %v", err)
	}
	got := strings.Split(strings.TrimSpace(out), "\n")
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(got), out)
	}
	if got[1] != "[2024-03-01 10:00:09] Created clip_1.mp4" {
		t.Errorf("last line = %q", got[1])
	}
}

func TestProbeCommand_RequiresArg(t *testing.T) {
	if _, err := execute(t, "probe"); err == nil {
		t.Fatal("expected error without a video argument")
	}
}
