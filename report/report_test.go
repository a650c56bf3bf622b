package report

import (
	"testing"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func artifact(name string) capture.Artifact {
	return capture.Artifact{Name: name, Filename: capture.Filename(name, at), Path: capture.Filename(name, at), Timestamp: at}
}

func TestAggregate_HomeExamples(t *testing.T) {
	tests := []struct {
		name   string
		record baseline.ComparisonRecord
		want   Summary
	}{
		{
			name:   "first run creates baseline",
			record: baseline.ComparisonRecord{Name: "home", IsNewBaseline: true},
			want:   Summary{TotalScreenshots: 1, NewBaselines: 1, Comparisons: 0},
		},
		{
			name:   "second run compares",
			record: baseline.ComparisonRecord{Name: "home", HadExistingBaseline: true},
			want:   Summary{TotalScreenshots: 1, NewBaselines: 0, Comparisons: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Aggregate(at, []TargetRun{{
				Result:      RunResult{Target: TargetWeb, Success: true, Screenshots: 1},
				Artifacts:   []capture.Artifact{artifact("home")},
				Comparisons: []baseline.ComparisonRecord{tt.record},
			}})
			assert.Equal(t, tt.want, r.Summary)
			assert.Equal(t, at, r.Timestamp)
			require.NotNil(t, r.Results.Web)
			assert.Nil(t, r.Results.Android)
		})
	}
}

func TestAggregate_ConcatenatesInTargetOrder(t *testing.T) {
	r := Aggregate(at, []TargetRun{
		{
			Result:      RunResult{Target: TargetWeb, Success: true},
			Artifacts:   []capture.Artifact{artifact("a"), artifact("b")},
			Comparisons: []baseline.ComparisonRecord{{Name: "a", IsNewBaseline: true}, {Name: "b", HadExistingBaseline: true}},
		},
		{Result: RunResult{Target: TargetAndroid, Error: "No Android device", Skipped: true}},
		{
			Result:      RunResult{Target: TargetHosted, Success: true},
			Artifacts:   []capture.Artifact{artifact("c")},
			Comparisons: []baseline.ComparisonRecord{{Name: "c", HadExistingBaseline: true}},
		},
	})

	var names []string
	for _, a := range r.Screenshots {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, Summary{TotalScreenshots: 3, NewBaselines: 1, Comparisons: 2}, r.Summary)

	ordered := r.Results.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, TargetWeb, ordered[0].Target)
	assert.Equal(t, TargetAndroid, ordered[1].Target)
	assert.Equal(t, TargetHosted, ordered[2].Target)
}

func TestAggregate_Empty(t *testing.T) {
	r := Aggregate(at, nil)
	assert.NotNil(t, r.Screenshots)
	assert.NotNil(t, r.Comparisons)
	assert.Equal(t, Summary{}, r.Summary)
}

func TestSummarize_CountsAddUp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("newBaselines + comparisons == total", prop.ForAll(
		func(flags []bool) bool {
			records := make([]baseline.ComparisonRecord, len(flags))
			for i, isNew := range flags {
				records[i] = baseline.ComparisonRecord{IsNewBaseline: isNew, HadExistingBaseline: !isNew}
			}
			s := Summarize(records)
			return s.NewBaselines+s.Comparisons == s.TotalScreenshots && s.TotalScreenshots == len(flags)
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestSummarize_Mismatches(t *testing.T) {
	yes, no := true, false
	s := Summarize([]baseline.ComparisonRecord{
		{HadExistingBaseline: true, Matched: &yes},
		{HadExistingBaseline: true, Matched: &no},
		{HadExistingBaseline: true},
	})
	assert.Equal(t, 1, s.Mismatches)
	assert.Equal(t, 3, s.Comparisons)
}

func TestParseTargets(t *testing.T) {
	tests := []struct {
		mode      string
		want      []TargetKind
		wantError bool
	}{
		{mode: "all", want: AllTargets},
		{mode: "", want: AllTargets},
		{mode: "web", want: []TargetKind{TargetWeb}},
		{mode: "integration, web", want: []TargetKind{TargetWeb, TargetIntegration}},
		{mode: "hosted,hosted", want: []TargetKind{TargetHosted}},
		{mode: "WEB,all", want: AllTargets},
		{mode: "ios", wantError: true},
		{mode: ",", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := ParseTargets(tt.mode)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsolidate(t *testing.T) {
	r := Aggregate(at, []TargetRun{
		{Result: RunResult{Target: TargetWeb, Success: true, Screenshots: 3}},
		{Result: RunResult{Target: TargetAndroid, Skipped: true, Error: "No Android device"}},
		{Result: RunResult{Target: TargetIntegration, Error: "exit status 1", ErrorKind: "external_tool"}},
		{Result: RunResult{Target: TargetHosted, Success: true}},
	})

	c := Consolidate("run-1", r, ConfigSnapshot{WebPort: 8080})
	assert.Equal(t, TestSummary{TotalTests: 4, Successful: 2, Failed: 2, Skipped: 1}, c.Summary)
	assert.False(t, c.Success())
	assert.Equal(t, 8080, c.Config.WebPort)

	ok := Consolidate("run-2", Aggregate(at, []TargetRun{{Result: RunResult{Target: TargetWeb, Success: true}}}), ConfigSnapshot{})
	assert.True(t, ok.Success())

	assert.False(t, Consolidate("run-3", Aggregate(at, nil), ConfigSnapshot{}).Success())
}

func TestRunResult_Duration(t *testing.T) {
	r := RunResult{StartedAt: at, CompletedAt: at.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, r.Duration())
}
