package main

import (
	"testing"
	"time"
)

func TestParseStartFlag(t *testing.T) {
	got, err := parseStartFlag("2023-01-15")
	if err != nil {
		t.Fatalf("parseStartFlag: %v", err)
	}
	want := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Errorf("parseStartFlag = %v, want %v", got, want)
	}
}

func TestParseStartFlag_EmptyMeansResume(t *testing.T) {
	got, err := parseStartFlag("")
	if err != nil {
		t.Fatalf("parseStartFlag: %v", err)
	}
	if got != nil {
		t.Errorf("parseStartFlag(\"\") = %v, want nil", got)
	}
}

func TestParseStartFlag_Invalid(t *testing.T) {
	if _, err := parseStartFlag("15/01/2023"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestParseEndFlag(t *testing.T) {
	got, err := parseEndFlag("2023-01-15", time.Now())
	if err != nil {
		t.Fatalf("parseEndFlag: %v", err)
	}
	want := time.Date(2023, 1, 15, 23, 59, 59, 999999000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseEndFlag = %v, want %v", got, want)
	}
}

func TestParseEndFlag_DefaultsToYesterday(t *testing.T) {
	now := time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC)
	got, err := parseEndFlag("", now)
	if err != nil {
		t.Fatalf("parseEndFlag: %v", err)
	}
	want := time.Date(2023, 6, 14, 23, 59, 59, 999999000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseEndFlag = %v, want yesterday end-of-day %v", got, want)
	}
}
