package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"
)

func setupDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "history.db")); err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() { CloseDB() })
}

func TestQueriesWithoutInit(t *testing.T) {
	CloseDB()
	if _, err := GetSampleHistory(context.Background(), 10); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	for i := 0; i < 2; i++ {
		if err := InitDB(path); err != nil {
			t.Fatalf("InitDB() run %d error = %v", i, err)
		}
		CloseDB()
	}
}

func TestProbeRunLifecycle(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	runID, err := CreateProbeRun(ctx, `{"samples":5}`, 2, "cli")
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fast := speedtester.BandwidthSample{
		Target: "http://a.test", DownloadMbps: 120.5, UploadMbps: 12, LatencyMs: 14.2, JitterMs: 1.1,
		ConnectionType: speedtester.ConnEthernet, EffectiveType: speedtester.Effective4G,
		Method: speedtester.MethodSpeedTest, Status: speedtester.StatusComplete, CapturedAt: base,
	}
	dead := speedtester.BandwidthSample{
		Target: "http://b.test", ConnectionType: speedtester.ConnUnknown, Method: speedtester.MethodSpeedTest,
		Status: speedtester.StatusDegraded, Failures: []string{"latency", "download", "upload"},
		CapturedAt: base.Add(time.Minute),
	}
	records := []SampleRecord{
		NewSampleRecord("degraded", "every probe failed", dead),
		NewSampleRecord("passed", "", fast),
	}
	if err := InsertSamplesBatch(ctx, runID, records); err != nil {
		t.Fatal(err)
	}
	if err := FinishProbeRun(ctx, runID, base.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	runs, err := ListProbeRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].TargetCount != 2 || runs[0].EndTime == nil {
		t.Fatalf("runs = %+v", runs)
	}

	samples, err := GetRunSamples(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 || samples[0].Target != "http://a.test" {
		t.Fatalf("run samples = %+v", samples)
	}
	if samples[0].DownloadMbps != 120.5 || samples[0].EffectiveType != "4g" {
		t.Errorf("stored sample = %+v", samples[0])
	}
	if samples[1].Failures != "latency,download,upload" {
		t.Errorf("Failures = %q", samples[1].Failures)
	}

	history, err := GetSampleHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Target != "http://b.test" {
		t.Errorf("newest sample = %+v", history)
	}
	if !history[0].CapturedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CapturedAt = %v", history[0].CapturedAt)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	setupDB(t)
	if err := FinishProbeRun(context.Background(), 42, time.Now()); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestDeleteRunsBefore(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	runID, err := CreateProbeRun(ctx, "", 1, "web")
	if err != nil {
		t.Fatal(err)
	}
	rec := NewSampleRecord("passed", "", speedtester.BandwidthSample{Target: "http://a.test", CapturedAt: time.Now()})
	if err := InsertSamplesBatch(ctx, runID, []SampleRecord{rec}); err != nil {
		t.Fatal(err)
	}

	n, err := DeleteRunsBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("prune of fresh runs = %d, %v", n, err)
	}
	n, err = DeleteRunsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("prune = %d, %v; want 1", n, err)
	}
	history, err := GetSampleHistory(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("samples survived their run: %+v", history)
	}
}
