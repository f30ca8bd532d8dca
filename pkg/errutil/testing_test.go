// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/holomush/cogwheel/pkg/errutil"
)

// recordingT collects failures instead of failing the test.
type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func (r *recordingT) Helper() {}

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("MODULE_LOAD_FAILED").With("module", "music").Errorf("boom")

	assert.True(t, errutil.AssertErrorCode(t, err, "MODULE_LOAD_FAILED"))
	assert.True(t, errutil.AssertErrorContext(t, err, "module", "music"))
}

func TestAssertErrorCode_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"nil error", nil},
		{"plain error", errors.New("plain")},
		{"wrong code", oops.Code("NOT_FOUND").Errorf("missing")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			assert.False(t, errutil.AssertErrorCode(rec, tt.err, "ALREADY_EXISTS"))
			assert.NotEmpty(t, rec.failures)
		})
	}
}

func TestAssertErrorContext_Failures(t *testing.T) {
	err := oops.With("cog", "music").Errorf("disabled")

	rec := &recordingT{}
	assert.False(t, errutil.AssertErrorContext(rec, err, "module", "music"))
	assert.False(t, errutil.AssertErrorContext(rec, err, "cog", "games"))
	assert.Len(t, rec.failures, 2)
}
