// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		want    Result
		ok      bool
		wantErr bool
	}{
		{name: "ordinary output", line: "2024-05-01 INFO starting"},
		{
			name: "class result",
			line: "##mason[test=com.starrocks.qe.ConnectContextTest status=passed duration_ms=412]",
			want: Result{Class: "com.starrocks.qe.ConnectContextTest", Status: StatusPassed, Duration: 412 * time.Millisecond},
			ok:   true,
		},
		{
			name: "method failure with escapes",
			line: "  ##mason[test=a.BTest#testKill status=failed message='it|'s [broken|] || done|nnext']",
			want: Result{Class: "a.BTest", Name: "testKill", Status: StatusFailed, Message: "it's [broken] | done\nnext"},
			ok:   true,
		},
		{name: "unknown status", line: "##mason[test=a.BTest status=flaky]", ok: true, wantErr: true},
		{name: "missing test", line: "##mason[status=passed]", ok: true, wantErr: true},
		{name: "unterminated", line: "##mason[test=a.BTest status=passed", ok: true, wantErr: true},
		{name: "unterminated quote", line: "##mason[test=a.BTest status=failed message='oops]", ok: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := parseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatLine(t *testing.T) {
	t.Parallel()

	r := Result{Class: "a.BTest", Name: "testKill", Status: StatusFailed, Duration: 3 * time.Millisecond, Message: "it's [x] | y\nz"}
	got, ok, err := parseLine(FormatLine(r))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)
}
