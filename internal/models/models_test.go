package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestClassifyOrientation(t *testing.T) {
	cases := []struct {
		width, height int
		want          Orientation
	}{
		{120, 100, OrientationLandscape}, // ratio 1.2
		{95, 100, OrientationSquare},     // ratio 0.95
		{50, 100, OrientationPortrait},   // ratio 0.5
		{110, 100, OrientationSquare},    // exactly 1.1 stays square
		{90, 100, OrientationSquare},     // exactly 0.9 stays square
		{100, 100, OrientationSquare},
	}

	for _, tc := range cases {
		if got := ClassifyOrientation(tc.width, tc.height); got != tc.want {
			t.Errorf("ClassifyOrientation(%d, %d) = %s, want %s", tc.width, tc.height, got, tc.want)
		}
	}
}

func TestBeatInterval(t *testing.T) {
	if got := BeatInterval(120, 1.0); got != 0.5 {
		t.Errorf("BeatInterval(120, 1.0) = %v, want 0.5", got)
	}
	if got := BeatInterval(120, 2.0); got != 1.0 {
		t.Errorf("BeatInterval(120, 2.0) = %v, want 1.0", got)
	}
	if got := BeatInterval(100, 1.5); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("BeatInterval(100, 1.5) = %v, want 0.9", got)
	}
}

func TestExportJobTransitions(t *testing.T) {
	out := "final.mp4"

	// starting from every prior state resets progress and clears the output
	priors := []ExportJob{
		{Status: ExportStatusIdle},
		{Status: ExportStatusCompleted, Progress: 100, OutputFile: &out},
		{Status: ExportStatusError, Progress: 37},
	}

	for _, job := range priors {
		job.Start()
		if job.Status != ExportStatusProcessing {
			t.Errorf("Start from %v: status = %s, want processing", job, job.Status)
		}
		if job.Progress != 0 {
			t.Errorf("Start: progress = %v, want 0", job.Progress)
		}
		if job.OutputFile != nil {
			t.Errorf("Start: output file not cleared")
		}
	}

	var job ExportJob
	job.Start()
	job.Complete("abc.mp4")
	if job.Status != ExportStatusCompleted || job.Progress != 100 {
		t.Errorf("Complete: got %s/%v", job.Status, job.Progress)
	}
	if job.OutputFile == nil || *job.OutputFile != "abc.mp4" {
		t.Errorf("Complete: output file = %v", job.OutputFile)
	}

	job.Start()
	job.Fail()
	if job.Status != ExportStatusError {
		t.Errorf("Fail: status = %s", job.Status)
	}
	if job.OutputFile != nil {
		t.Errorf("Fail: output file must stay unset")
	}
}

func TestPhotosInOrder(t *testing.T) {
	p := Project{Photos: []Photo{
		{OriginalName: "c", Order: 2},
		{OriginalName: "a", Order: 0},
		{OriginalName: "b1", Order: 1},
		{OriginalName: "b2", Order: 1}, // tie: insertion position wins
	}}

	got := p.PhotosInOrder()
	want := []string{"a", "b1", "b2", "c"}
	for i, name := range want {
		if got[i].OriginalName != name {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].OriginalName, name)
		}
	}

	// original slice untouched
	if p.Photos[0].OriginalName != "c" {
		t.Error("PhotosInOrder mutated the project")
	}
}

func TestJSONBRoundTrip(t *testing.T) {
	settings := DefaultSettings()
	col, err := MarshalJSONB(settings)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	val, err := col.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var scanned JSONB
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("scan: %v", err)
	}

	var decoded ProjectSettings
	if err := json.Unmarshal(scanned, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded != settings {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, settings)
	}
}

func TestJSONBNil(t *testing.T) {
	var j JSONB
	val, err := j.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if val != nil {
		t.Errorf("empty JSONB should produce NULL, got %v", val)
	}

	if err := j.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if j != nil {
		t.Errorf("scan nil should leave nil column")
	}
}

func TestJSONBScanSources(t *testing.T) {
	var j JSONB
	if err := j.Scan(`{"a":1}`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if string(j) != `{"a":1}` {
		t.Errorf("scan string = %q", j)
	}

	if err := j.Scan(12345); err == nil {
		t.Error("scan of an unexpected source type must fail, not truncate the document")
	}
}
