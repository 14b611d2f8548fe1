package sentinel

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Text(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  Error
		want string
	}{
		"launch failure": {err: Error("launch failed"), want: "launch failed"},
		"empty":          {err: Error(""), want: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestError_ErrorsIs(t *testing.T) {
	t.Parallel()

	const errExited = Error("process exited")

	tests := map[string]struct {
		err    error
		target error
		want   bool
	}{
		"direct":               {err: errExited, target: errExited, want: true},
		"wrapped":              {err: fmt.Errorf("wait for liteserv: %w", errExited), target: errExited, want: true},
		"other sentinel":       {err: errExited, target: Error("pool closed"), want: false},
		"errors.New same text": {err: errExited, target: errors.New("process exited"), want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := errors.Is(tc.err, tc.target); got != tc.want {
				t.Errorf("errors.Is = %v, want %v", got, tc.want)
			}
		})
	}
}
