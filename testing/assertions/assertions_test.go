package assertions_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/testing/assertions"
	"github.com/sirupsen/logrus"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

func TestAssertions_Equal(t *testing.T) {
	type args struct {
		tb       *assertions.TBMock
		expected interface{}
		actual   interface{}
		msgs     []interface{}
	}
	tests := []struct {
		name        string
		args        args
		expectedErr string
	}{
		{
			name: "equal values",
			args: args{tb: &assertions.TBMock{}, expected: 42, actual: 42},
		},
		{
			name:        "non-equal values",
			args:        args{tb: &assertions.TBMock{}, expected: 42, actual: 41},
			expectedErr: "Values are not equal, got: 41, want: 42",
		},
		{
			name:        "custom error message",
			args:        args{tb: &assertions.TBMock{}, expected: 42, actual: 41, msgs: []interface{}{"Custom values are not equal"}},
			expectedErr: "Custom values are not equal, got: 41, want: 42",
		},
		{
			name:        "custom error message with params",
			args:        args{tb: &assertions.TBMock{}, expected: 42, actual: 41, msgs: []interface{}{"Custom msg (%d, %d)", 1, 2}},
			expectedErr: "Custom msg (1, 2), got: 41, want: 42",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertions.Equal(tt.args.tb.Errorf, tt.args.expected, tt.args.actual, tt.args.msgs...)
			if tt.expectedErr == "" && tt.args.tb.ErrorfMsg != "" {
				t.Errorf("Unexpected error: %v", tt.args.tb.ErrorfMsg)
			} else if !strings.Contains(tt.args.tb.ErrorfMsg, tt.expectedErr) {
				t.Errorf("got: %q, want: %q", tt.args.tb.ErrorfMsg, tt.expectedErr)
			}
		})
	}
}

func TestAssertions_DeepEqual(t *testing.T) {
	type record struct {
		ID   string
		Tags []string
	}
	tb := &assertions.TBMock{}
	assertions.DeepEqual(tb.Errorf, record{"a", []string{"x"}}, record{"a", []string{"x"}})
	if tb.ErrorfMsg != "" {
		t.Errorf("Unexpected error: %v", tb.ErrorfMsg)
	}
	assertions.DeepEqual(tb.Errorf, record{"a", []string{"x"}}, record{"a", []string{"y"}})
	if !strings.Contains(tb.ErrorfMsg, "Values are not equal") {
		t.Errorf("got: %q, want deep-equal failure", tb.ErrorfMsg)
	}
}

func TestAssertions_NoError(t *testing.T) {
	tb := &assertions.TBMock{}
	assertions.NoError(tb.Fatalf, nil)
	if tb.FatalfMsg != "" {
		t.Errorf("Unexpected error: %v", tb.FatalfMsg)
	}
	assertions.NoError(tb.Fatalf, errors.New("failed"))
	if !strings.Contains(tb.FatalfMsg, "Unexpected error: failed") {
		t.Errorf("got: %q", tb.FatalfMsg)
	}
}

func TestAssertions_ErrorContains(t *testing.T) {
	tb := &assertions.TBMock{}
	assertions.ErrorContains(tb.Fatalf, "half", errors.New("half of the truth"))
	if tb.FatalfMsg != "" {
		t.Errorf("Unexpected error: %v", tb.FatalfMsg)
	}
	assertions.ErrorContains(tb.Fatalf, "whole", errors.New("half of the truth"))
	if !strings.Contains(tb.FatalfMsg, "Expected error not returned") {
		t.Errorf("got: %q", tb.FatalfMsg)
	}
	tb = &assertions.TBMock{}
	assertions.ErrorContains(tb.Fatalf, "whole", nil)
	if !strings.Contains(tb.FatalfMsg, "Expected error not returned") {
		t.Errorf("got: %q", tb.FatalfMsg)
	}
}

func TestAssertions_NotNil(t *testing.T) {
	tb := &assertions.TBMock{}
	assertions.NotNil(tb.Fatalf, struct{}{})
	if tb.FatalfMsg != "" {
		t.Errorf("Unexpected error: %v", tb.FatalfMsg)
	}
	var typedNil *assertions.TBMock
	assertions.NotNil(tb.Fatalf, typedNil)
	if !strings.Contains(tb.FatalfMsg, "Unexpected nil value") {
		t.Errorf("got: %q", tb.FatalfMsg)
	}
}

func TestAssertions_LogsContain(t *testing.T) {
	logger, hook := logTest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	logger.Info("lane B acknowledged bundle")

	tb := &assertions.TBMock{}
	assertions.LogsContain(tb.Errorf, hook, "acknowledged bundle", true)
	if tb.ErrorfMsg != "" {
		t.Errorf("Unexpected error: %v", tb.ErrorfMsg)
	}
	assertions.LogsContain(tb.Errorf, hook, "dropped bundle", true)
	if !strings.Contains(tb.ErrorfMsg, "Expected log not found") {
		t.Errorf("got: %q", tb.ErrorfMsg)
	}
	tb = &assertions.TBMock{}
	assertions.LogsContain(tb.Errorf, hook, "acknowledged bundle", false)
	if !strings.Contains(tb.ErrorfMsg, "Unexpected log found") {
		t.Errorf("got: %q", tb.ErrorfMsg)
	}
}
