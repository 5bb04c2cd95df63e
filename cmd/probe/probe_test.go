package probe

import (
	"testing"
	"time"

	"github.com/vnetscan/vnetscan/pkg/config"
	"github.com/vnetscan/vnetscan/speedtester"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"single url", Config{Target: "http://a.test", OutputType: "txt"}, false},
		{"file", Config{TargetsFile: "targets.txt", OutputType: "csv"}, false},
		{"nothing to probe", Config{OutputType: "txt"}, true},
		{"url and file", Config{Target: "a", TargetsFile: "b", OutputType: "txt"}, true},
		{"bad output", Config{Target: "a", OutputType: "xml"}, true},
		{"watch with file", Config{TargetsFile: "b", OutputType: "txt", Watch: time.Second}, true},
		{"bad conn type", Config{Target: "a", OutputType: "txt", ConnType: "fiber"}, true},
		{"bad effective type", Config{Target: "a", OutputType: "txt", EffectiveType: "5g"}, true},
		{"negative rtt", Config{Target: "a", OutputType: "txt", RTTMs: -1}, true},
		{"no delay", Config{Target: "a", OutputType: "txt", SampleDelay: 0}, false},
		{"negative delay", Config{Target: "a", OutputType: "txt", SampleDelay: -time.Second}, true},
		{"netinfo and static", Config{Target: "a", OutputType: "txt", DetectNetInfo: true, DownlinkMbps: 10}, true},
	}
	for _, tc := range tests {
		cfg := tc.cfg
		err := validateConfig(&cfg)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestValidateConfigOutputExtension(t *testing.T) {
	cfg := Config{Target: "a", OutputType: "json", OutputFile: "results.txt"}
	if err := validateConfig(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.OutputFile != "results.json" {
		t.Errorf("OutputFile = %q", cfg.OutputFile)
	}
}

func TestStaticInfo(t *testing.T) {
	if info := (&Config{}).staticInfo(); info != nil {
		t.Errorf("empty flags gave %+v", info)
	}
	info := (&Config{DownlinkMbps: 40, RTTMs: 35}).staticInfo()
	if info == nil || info.Type != speedtester.ConnUnknown || info.DownlinkMbps != 40 {
		t.Fatalf("info = %+v", info)
	}
	if !info.Available() {
		t.Error("static info should be available")
	}
}

func TestMergeFileConfig(t *testing.T) {
	cmd := newProbeCommand()
	if err := cmd.Flags().Parse([]string{"--samples", "9"}); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{LatencySamples: 9}

	file := config.Default()
	file.Probe.Target = "http://from-file.test"
	file.Probe.LatencySamples = 3
	file.Probe.Threads = 12
	file.Database.Save = true

	mergeFileConfig(cmd, cfg, file)
	if cfg.LatencySamples != 9 {
		t.Errorf("explicit flag overridden: %d", cfg.LatencySamples)
	}
	if cfg.Target != "http://from-file.test" || cfg.ThreadCount != 12 || !cfg.Save {
		t.Errorf("file values not applied: %+v", cfg)
	}

	opts := cfg.options(file)
	if opts.LatencySamples != 9 || opts.Endpoints != speedtester.DefaultEndpoints {
		t.Errorf("options = %+v", opts)
	}
}

func TestZeroDelayReachesOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		file time.Duration
		want time.Duration
	}{
		{"flag zero beats file", []string{"--delay", "0"}, 250 * time.Millisecond, 0},
		{"file zero", nil, 0, 0},
		{"flag default", nil, speedtester.DefaultSampleDelay, speedtester.DefaultSampleDelay},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newProbeCommand()
			if err := cmd.Flags().Parse(tc.args); err != nil {
				t.Fatal(err)
			}
			delay, err := cmd.Flags().GetDuration("delay")
			if err != nil {
				t.Fatal(err)
			}
			cfg := &Config{SampleDelay: delay}
			file := config.Default()
			file.Probe.SampleDelay = tc.file

			mergeFileConfig(cmd, cfg, file)
			if got := cfg.options(file).SampleDelay; got != tc.want {
				t.Errorf("SampleDelay = %v, want %v", got, tc.want)
			}
		})
	}
}
