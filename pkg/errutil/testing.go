// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
)

// TestingT is satisfied by *testing.T and by GinkgoT().
type TestingT interface {
	assert.TestingT
	Helper()
}

func asOops(t TestingT, err error) (oops.OopsError, bool) {
	t.Helper()
	if err == nil {
		t.Errorf("expected an error, got nil")
		return oops.OopsError{}, false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		t.Errorf("expected oops error, got %T: %v", err, err)
	}
	return oopsErr, ok
}

// AssertErrorCode asserts that err is an oops error whose code is code.
func AssertErrorCode(t TestingT, err error, code string) bool {
	t.Helper()
	oopsErr, ok := asOops(t, err)
	if !ok {
		return false
	}
	return assert.Equal(t, code, oopsErr.Code(), "error code of %q", err.Error())
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t TestingT, err error, key string, value any) bool {
	t.Helper()
	oopsErr, ok := asOops(t, err)
	if !ok {
		return false
	}
	ctx := oopsErr.Context()
	got, present := ctx[key]
	if !present {
		return assert.Fail(t, "missing error context key", "key %q not in %v", key, ctx)
	}
	return assert.Equal(t, value, got, "error context %q", key)
}
